package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrInvalidFrame        = fmt.Errorf("invalid frame")
	ErrUnsupportedFrame    = fmt.Errorf("unsupported frame type")
	ErrMissingParticipants = fmt.Errorf("missing sender or receiver")
	ErrMissingGroupFields  = fmt.Errorf("missing token, group name or sender name")
	ErrInvalidGroup        = fmt.Errorf("group name and members are required")
	ErrInvalidPost         = fmt.Errorf("missing text or adminEmail")
	ErrInvalidNotification = fmt.Errorf("notification title is required")

	ErrNotFound           = fmt.Errorf("document not found")
	ErrUnregisteredToken  = fmt.Errorf("registration token not registered")
	ErrConnectionClosed   = fmt.Errorf("connection closed")
	ErrSendBufferFull     = fmt.Errorf("connection send buffer full")
	ErrSubscriptionClosed = fmt.Errorf("subscription closed")
)
