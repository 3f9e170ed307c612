package call

// Event is a typed notification from the voice client.
type Event interface {
	eventName() string
}

type CallStarted struct{}

type CallEnded struct{}

// Transcript carries a speech-to-text segment. Only Final segments reach
// the transcript log.
type Transcript struct {
	Role  Role
	Text  string
	Final bool
}

type SpeechStarted struct{}

type SpeechEnded struct{}

// Failure is an error reported by the voice client mid-session.
type Failure struct {
	Kind    ErrorKind
	Message string
}

func (CallStarted) eventName() string   { return "call-start" }
func (CallEnded) eventName() string     { return "call-end" }
func (Transcript) eventName() string    { return "message" }
func (SpeechStarted) eventName() string { return "speech-start" }
func (SpeechEnded) eventName() string   { return "speech-end" }
func (Failure) eventName() string       { return "error" }

// EventName returns the wire name of an event, for logs.
func EventName(ev Event) string {
	if ev == nil {
		return ""
	}
	return ev.eventName()
}

// Action is a user request to the controller.
type Action int

const (
	ActionStartCall Action = iota + 1
	ActionEndCall
	ActionToggleMute
)

func (a Action) String() string {
	switch a {
	case ActionStartCall:
		return "start"
	case ActionEndCall:
		return "end"
	case ActionToggleMute:
		return "toggle-mute"
	default:
		return "unknown"
	}
}
