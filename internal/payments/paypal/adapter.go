package paypal

import (
	"context"
	"errors"
	"fmt"

	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/payments"
	"github.com/afrobirthday/storefront/internal/pricing"
)

type ordersAPI interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	CaptureOrder(ctx context.Context, orderID, requestID string) (*Order, error)
}

// Adapter opens PayPal orders and captures them when the buyer returns.
type Adapter struct {
	client ordersAPI
}

func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Provider() models.PaymentProvider {
	return models.ProviderPayPal
}

func (a *Adapter) OpenAttempt(ctx context.Context, req payments.AttemptRequest) (payments.Attempt, error) {
	if req.AmountCents <= 0 {
		return payments.Attempt{}, fmt.Errorf("amount must be positive, got %d", req.AmountCents)
	}

	order, err := a.client.CreateOrder(ctx, CreateOrderRequest{
		RequestID:   "order-" + req.OrderID.String() + "-create",
		CustomID:    req.OrderID.String(),
		Description: req.Description,
		Amount: Money{
			CurrencyCode: "USD",
			Value:        pricing.FormatCents(req.AmountCents),
		},
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	})
	if err != nil {
		return payments.Attempt{}, err
	}

	approveURL := order.ApproveURL()
	if order.ID == "" || approveURL == "" {
		return payments.Attempt{}, fmt.Errorf("paypal order missing id or approve link")
	}

	return payments.Attempt{
		AttemptRef:  order.ID,
		RedirectURL: approveURL,
	}, nil
}

// Confirm reads the order and captures it only once the buyer has approved
// it. PayPal replays the stored response for a repeated PayPal-Request-Id, so
// the capture request id is only ever sent against an approved order; an
// early refresh can't pin an ORDER_NOT_APPROVED rejection to it. A capture
// that loses a race with another capture or a void falls back to reading the
// order again.
func (a *Adapter) Confirm(ctx context.Context, attemptRef string) (payments.Confirmation, error) {
	order, err := a.client.GetOrder(ctx, attemptRef)
	if err != nil {
		return payments.Confirmation{}, err
	}
	if order.Status != StatusApproved {
		return confirmationFromOrder(attemptRef, order), nil
	}

	captured, err := a.client.CaptureOrder(ctx, attemptRef, "capture-"+attemptRef)
	if err != nil {
		if !errors.Is(err, ErrAlreadyCaptured) && !errors.Is(err, ErrNotApproved) && !errors.Is(err, ErrOrderClosed) {
			return payments.Confirmation{}, err
		}
		captured, err = a.client.GetOrder(ctx, attemptRef)
		if err != nil {
			return payments.Confirmation{}, err
		}
	}
	return confirmationFromOrder(attemptRef, captured), nil
}

func confirmationFromOrder(attemptRef string, order *Order) payments.Confirmation {
	confirmation := payments.Confirmation{
		AttemptRef: attemptRef,
		Outcome:    payments.OutcomePending,
		OrderID:    order.CustomID(),
	}

	switch order.Status {
	case StatusCompleted:
		capture, ok := order.FirstCapture()
		if !ok {
			return confirmation
		}
		switch capture.Status {
		case CaptureStatusCompleted, "":
			confirmation.Outcome = payments.OutcomeSucceeded
			confirmation.CaptureRef = capture.ID
		case CaptureStatusDeclined, CaptureStatusFailed:
			confirmation.Outcome = payments.OutcomeFailed
		}
	case StatusVoided:
		confirmation.Outcome = payments.OutcomeFailed
	}
	return confirmation
}
