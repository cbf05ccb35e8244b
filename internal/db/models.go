package db

import (
	"errors"

	"github.com/afrobirthday/storefront/internal/models"
)

type Order = models.Order
type PaymentStatus = models.PaymentStatus
type FulfillmentStatus = models.FulfillmentStatus

const (
	StatusPending  = models.StatusPending
	StatusPaid     = models.StatusPaid
	StatusCanceled = models.StatusCanceled
)

// TransitionResult tells a caller whether its write performed the transition or
// found it already done. Only TransitionApplied may trigger side effects.
type TransitionResult int

const (
	TransitionApplied TransitionResult = iota + 1
	TransitionAlreadyApplied
)

func (r TransitionResult) String() string {
	switch r {
	case TransitionApplied:
		return "applied"
	case TransitionAlreadyApplied:
		return "already_applied"
	default:
		return "unknown"
	}
}

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrAttemptConflict is returned when an order already carries a provider attempt.
	ErrAttemptConflict = errors.New("payment attempt already attached")
	// ErrTerminalConflict is returned when a transition targets an order that
	// settled in the opposite terminal state. The stored state is left as is.
	ErrTerminalConflict = errors.New("order settled in a different terminal state")
)

// BackOfficeUpdate carries the only fields staff may change. Nil means unchanged.
type BackOfficeUpdate struct {
	OrderStatus *FulfillmentStatus
	Notes       *string
	CostCents   *int64
}
