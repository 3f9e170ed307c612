package server

import (
	"time"

	"github.com/sjawhar/ghost-tutor/internal/call"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type CallStateEvent struct {
	Event
	Call call.Snapshot `json:"call"`
}

type InterimTranscriptEvent struct {
	Event
	CallID string `json:"call_id"`
	Text   string `json:"text"`
}

type CallRecordedEvent struct {
	Event
	CallID      string `json:"call_id"`
	CompanionID string `json:"companion_id"`
}

type RecapReadyEvent struct {
	Event
	CallID string `json:"call_id"`
	Recap  string `json:"recap"`
	Status string `json:"status"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
