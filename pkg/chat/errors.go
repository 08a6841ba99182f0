package chat

import (
	"errors"
	"fmt"
)

var (
	ErrIdentityUnset  = errors.New("a nickname must be set before sending messages")
	ErrEmptyIdentity  = errors.New("nickname must not be empty")
	ErrIdentityLocked = errors.New("nickname is already set")
	ErrSessionClosed  = errors.New("session has ended")
	ErrNotConnected   = errors.New("push channel is not connected")
	ErrMalformedFrame = errors.New("malformed frame")
)

// StatusError is returned when an endpoint answers with a non-2xx status.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code: %d", e.Op, e.Code)
}
