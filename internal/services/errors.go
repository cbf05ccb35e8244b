package services

import "errors"

// UserError carries a message that is safe to show to the caller. Handlers
// answer it with 400.
type UserError struct {
	Message string
}

func (e UserError) Error() string {
	return e.Message
}

var (
	// ErrUnknownAttempt means no order carries the provider attempt a
	// confirmation refers to.
	ErrUnknownAttempt = errors.New("unknown payment attempt")

	// ErrAttemptMismatch means the attempt named by a caller belongs to a
	// different order.
	ErrAttemptMismatch = errors.New("payment attempt does not belong to order")

	ErrServiceUnavailable = errors.New("service unavailable")
)
