package call

import (
	"context"
	"time"
)

// Status is the lifecycle state of a call.
type Status string

const (
	StatusInactive   Status = "inactive"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusFinished   Status = "finished"
)

// InCall reports whether the status represents a live or starting call.
func (s Status) InCall() bool {
	return s == StatusConnecting || s == StatusActive
}

type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

type TranscriptEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionParameters describe one tutoring call. They are fixed for the
// lifetime of a Controller.
type SessionParameters struct {
	CompanionID   string `json:"companion_id"`
	Subject       string `json:"subject"`
	Topic         string `json:"topic"`
	Voice         string `json:"voice"`
	Style         string `json:"style"`
	PresenterName string `json:"presenter_name"`
	UserName      string `json:"user_name"`
	UserAvatar    string `json:"user_avatar"`
}

// Overrides are the per-call variables handed to the voice client on start.
type Overrides struct {
	// CallID names the call's artifacts, such as its audio recording.
	CallID  string
	Subject string
	Topic   string
	Style   string
}

// Snapshot is the read-only presentation state of a controller.
type Snapshot struct {
	CallID       string            `json:"call_id"`
	CompanionID  string            `json:"companion_id"`
	Status       Status            `json:"status"`
	Speaking     bool              `json:"speaking"`
	Muted        bool              `json:"muted"`
	Initializing bool              `json:"initializing"`
	Transcript   []TranscriptEntry `json:"transcript"`
}

// HistoryRecord is appended once per concluded call.
type HistoryRecord struct {
	CallID      string
	CompanionID string
	UserName    string
	StartedAt   time.Time
	EndedAt     time.Time
	// Transcript is newest-first, as displayed.
	Transcript []TranscriptEntry
}

// VoiceClient is the voice assistant SDK as seen by the controller.
type VoiceClient interface {
	Start(ctx context.Context, params SessionParameters, overrides Overrides) error
	Stop()
	IsMuted() bool
	SetMuted(ctx context.Context, muted bool) error
	Subscribe(handler func(Event)) (unsubscribe func())
}

type DeviceProber interface {
	// CountInputDevices returns the number of audio-input capable devices.
	CountInputDevices(ctx context.Context) (int, error)
}

type HistoryRecorder interface {
	AddToSessionHistory(ctx context.Context, rec HistoryRecord) error
}

type Observer interface {
	CallStateChanged(snap Snapshot)
}
