package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/afrobirthday/storefront/internal/payments"
)

var ErrInvalidSignature = errors.New("stripe webhook signature invalid")

// ReadWebhookEvent verifies the Stripe-Signature header against the raw body.
// Nothing in the body is trusted before this returns.
func ReadWebhookEvent(r *http.Request, secret string) (*stripeapi.Event, error) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	return &event, nil
}

// ConfirmEvent maps a verified event to a confirmation. handled is false for
// event types that carry no lifecycle meaning; callers acknowledge and drop
// those.
func ConfirmEvent(event *stripeapi.Event) (confirmation payments.Confirmation, handled bool, err error) {
	if event == nil || event.Data == nil {
		return payments.Confirmation{}, false, fmt.Errorf("missing stripe event data")
	}

	switch event.Type {
	case stripeapi.EventTypePaymentIntentSucceeded, stripeapi.EventTypePaymentIntentCanceled:
		var intent stripeapi.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return payments.Confirmation{}, false, fmt.Errorf("invalid payment intent object: %w", err)
		}
		if intent.ID == "" {
			return payments.Confirmation{}, false, fmt.Errorf("missing payment intent id")
		}
		return confirmationFromIntent(&intent), true, nil

	case stripeapi.EventTypeCheckoutSessionCompleted,
		stripeapi.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripeapi.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripeapi.EventTypeCheckoutSessionExpired:
		var session stripeapi.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return payments.Confirmation{}, false, fmt.Errorf("invalid checkout session object: %w", err)
		}
		if session.ID == "" {
			return payments.Confirmation{}, false, fmt.Errorf("missing checkout session id")
		}
		confirmation := confirmationFromSession(&session)
		switch event.Type {
		case stripeapi.EventTypeCheckoutSessionAsyncPaymentFailed, stripeapi.EventTypeCheckoutSessionExpired:
			confirmation.Outcome = payments.OutcomeFailed
			confirmation.CaptureRef = ""
		}
		return confirmation, true, nil

	default:
		return payments.Confirmation{}, false, nil
	}
}

// HandlesEvent reports whether events of type t describe attempts opened in
// mode m. In checkout-session mode the session's own PaymentIntent also emits
// events, but orders only know the session id.
func (m Mode) HandlesEvent(t stripeapi.EventType) bool {
	switch {
	case strings.HasPrefix(string(t), "payment_intent."):
		return m != ModeCheckoutSession
	case strings.HasPrefix(string(t), "checkout.session."):
		return m == ModeCheckoutSession
	default:
		return true
	}
}

func confirmationFromIntent(intent *stripeapi.PaymentIntent) payments.Confirmation {
	confirmation := payments.Confirmation{
		AttemptRef: intent.ID,
		Outcome:    payments.OutcomePending,
		OrderID:    intent.Metadata[metadataOrderID],
	}

	switch intent.Status {
	case stripeapi.PaymentIntentStatusSucceeded:
		confirmation.Outcome = payments.OutcomeSucceeded
		confirmation.CaptureRef = intent.ID
		if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
			confirmation.CaptureRef = intent.LatestCharge.ID
		}
	case stripeapi.PaymentIntentStatusCanceled:
		confirmation.Outcome = payments.OutcomeFailed
	}
	return confirmation
}

func confirmationFromSession(session *stripeapi.CheckoutSession) payments.Confirmation {
	confirmation := payments.Confirmation{
		AttemptRef: session.ID,
		Outcome:    payments.OutcomePending,
		OrderID:    session.Metadata[metadataOrderID],
	}

	switch {
	case session.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusPaid:
		confirmation.Outcome = payments.OutcomeSucceeded
		confirmation.CaptureRef = session.ID
		if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
			confirmation.CaptureRef = session.PaymentIntent.ID
		}
	case session.Status == stripeapi.CheckoutSessionStatusExpired:
		confirmation.Outcome = payments.OutcomeFailed
	}
	return confirmation
}
