package session

import "errors"

var (
	// ErrNoActiveCall is returned by EndCall and ToggleMute when no call is
	// connecting or active.
	ErrNoActiveCall     = errors.New("no active call")
	ErrCallInProgress   = errors.New("a call is already in progress")
	ErrCompanionMissing = errors.New("companion not found")
)
