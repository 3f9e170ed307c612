package session

import (
	"context"

	"github.com/sjawhar/ghost-tutor/internal/call"
	"github.com/sjawhar/ghost-tutor/internal/storage"
)

type Store interface {
	GetCompanion(ctx context.Context, id string) (storage.Companion, error)
	AddToSessionHistory(ctx context.Context, rec call.HistoryRecord) (bool, error)
	UpdateRecap(ctx context.Context, callID, recap, status string) error
}

// Exporter writes a concluded call to the transcript archive.
type Exporter interface {
	AppendCall(rec call.HistoryRecord, tutorName string) (string, error)
}

type Recapper interface {
	Recap(ctx context.Context, callID, topic, transcript string) (string, error)
}

type EventBroadcaster interface {
	BroadcastCallState(snap call.Snapshot)
	BroadcastInterimTranscript(callID, text string)
	BroadcastCallRecorded(callID, companionID string)
	BroadcastRecapReady(callID, recap, status string)
}

// User is the signed-in learner.
type User struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}
