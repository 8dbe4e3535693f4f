package errors

import "fmt"

var (
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrNotConnected         = fmt.Errorf("transport not connected")
	ErrNoActiveSession      = fmt.Errorf("no active room session")
	ErrConfirmationDeclined = fmt.Errorf("confirmation declined")
	ErrInvalidPayload       = fmt.Errorf("invalid payload")
	ErrEmptyMessage         = fmt.Errorf("empty message")
	ErrEngineStopped        = fmt.Errorf("engine stopped")
	ErrSubscriptionClosed   = fmt.Errorf("subscription closed")
)
