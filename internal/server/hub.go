package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/ghost-tutor/internal/call"
)

// Hub fans events out to websocket clients. Slow clients miss messages
// rather than block the call.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastCallState(snap call.Snapshot) {
	h.broadcastEvent(CallStateEvent{
		Event: newEvent("call_state", time.Now().UTC()),
		Call:  snap,
	})
}

func (h *Hub) BroadcastInterimTranscript(callID, text string) {
	h.broadcastEvent(InterimTranscriptEvent{
		Event:  newEvent("interim_transcript", time.Now().UTC()),
		CallID: callID,
		Text:   text,
	})
}

func (h *Hub) BroadcastCallRecorded(callID, companionID string) {
	h.broadcastEvent(CallRecordedEvent{
		Event:       newEvent("call_recorded", time.Now().UTC()),
		CallID:      callID,
		CompanionID: companionID,
	})
}

func (h *Hub) BroadcastRecapReady(callID, recap, status string) {
	h.broadcastEvent(RecapReadyEvent{
		Event:  newEvent("recap_ready", time.Now().UTC()),
		CallID: callID,
		Recap:  recap,
		Status: status,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("event marshal failed", "error", err)
		return
	}
	h.Broadcast(payload)
}
