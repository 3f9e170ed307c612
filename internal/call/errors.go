package call

import (
	"errors"
	"strings"
)

var ErrNoInputDevice = errors.New("no audio input device available")

// ErrorKind is the structured category a voice client attaches to a failure.
type ErrorKind string

const (
	ErrorKindUnknown      ErrorKind = ""
	ErrorKindMeetingEnded ErrorKind = "meeting-ended"
	ErrorKindTransport    ErrorKind = "transport"
	ErrorKindConnection   ErrorKind = "connection"
	ErrorKindEjected      ErrorKind = "ejected"
	ErrorKindOther        ErrorKind = "other"
)

var terminatingFragments = []string{
	"meeting has ended",
	"meeting ended",
	"call has ended",
	"transport",
	"connection",
	"ejected",
}

// IsTerminating reports whether a failure ends the call. The structured kind
// wins; message matching only applies when the client could not classify.
func IsTerminating(f Failure) bool {
	switch f.Kind {
	case ErrorKindMeetingEnded, ErrorKindTransport, ErrorKindConnection, ErrorKindEjected:
		return true
	case ErrorKindOther:
		return false
	}

	msg := strings.ToLower(f.Message)
	for _, fragment := range terminatingFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
