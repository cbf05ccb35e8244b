package stripe

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	stripeapi "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/afrobirthday/storefront/internal/payments"
)

const testWebhookSecret = "whsec_test_secret"

func TestReadWebhookEvent_MissingSignature(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewBufferString(`{}`))
	_, err := ReadWebhookEvent(req, testWebhookSecret)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestReadWebhookEvent_WrongSecret(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt_test","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_other",
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)

	if _, err := ReadWebhookEvent(req, testWebhookSecret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestReadWebhookEvent_Valid(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt_test","object":"event","api_version":"2026-01-28.clover","type":"payment_intent.succeeded","data":{"object":{"id":"pi_test","object":"payment_intent","status":"succeeded"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)

	event, err := ReadWebhookEvent(req, testWebhookSecret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event == nil || event.ID != "evt_test" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestConfirmEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		eventType   stripeapi.EventType
		object      string
		wantHandled bool
		want        payments.Confirmation
	}{
		{
			name:        "intent succeeded uses latest charge",
			eventType:   stripeapi.EventTypePaymentIntentSucceeded,
			object:      `{"id":"pi_1","object":"payment_intent","status":"succeeded","latest_charge":"ch_1","metadata":{"orderId":"o1"}}`,
			wantHandled: true,
			want:        payments.Confirmation{AttemptRef: "pi_1", Outcome: payments.OutcomeSucceeded, CaptureRef: "ch_1", OrderID: "o1"},
		},
		{
			name:        "intent canceled",
			eventType:   stripeapi.EventTypePaymentIntentCanceled,
			object:      `{"id":"pi_2","object":"payment_intent","status":"canceled","metadata":{"orderId":"o2"}}`,
			wantHandled: true,
			want:        payments.Confirmation{AttemptRef: "pi_2", Outcome: payments.OutcomeFailed, OrderID: "o2"},
		},
		{
			name:        "session completed and paid",
			eventType:   stripeapi.EventTypeCheckoutSessionCompleted,
			object:      `{"id":"cs_1","object":"checkout.session","status":"complete","payment_status":"paid","payment_intent":"pi_9","metadata":{"orderId":"o3"}}`,
			wantHandled: true,
			want:        payments.Confirmation{AttemptRef: "cs_1", Outcome: payments.OutcomeSucceeded, CaptureRef: "pi_9", OrderID: "o3"},
		},
		{
			name:        "session completed but unpaid stays pending",
			eventType:   stripeapi.EventTypeCheckoutSessionCompleted,
			object:      `{"id":"cs_2","object":"checkout.session","status":"complete","payment_status":"unpaid"}`,
			wantHandled: true,
			want:        payments.Confirmation{AttemptRef: "cs_2", Outcome: payments.OutcomePending},
		},
		{
			name:        "session expired",
			eventType:   stripeapi.EventTypeCheckoutSessionExpired,
			object:      `{"id":"cs_3","object":"checkout.session","status":"expired","payment_status":"unpaid"}`,
			wantHandled: true,
			want:        payments.Confirmation{AttemptRef: "cs_3", Outcome: payments.OutcomeFailed},
		},
		{
			name:        "failed payment attempt is not terminal",
			eventType:   stripeapi.EventTypePaymentIntentPaymentFailed,
			object:      `{"id":"pi_4","object":"payment_intent","status":"requires_payment_method"}`,
			wantHandled: false,
		},
		{
			name:        "unrelated event",
			eventType:   stripeapi.EventTypeCustomerCreated,
			object:      `{"id":"cus_1","object":"customer"}`,
			wantHandled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			event := &stripeapi.Event{
				ID:   "evt_" + tt.name,
				Type: tt.eventType,
				Data: &stripeapi.EventData{Raw: []byte(tt.object)},
			}
			got, handled, err := ConfirmEvent(event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if handled != tt.wantHandled {
				t.Fatalf("expected handled=%v, got %v", tt.wantHandled, handled)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestConfirmEvent_MissingData(t *testing.T) {
	t.Parallel()

	if _, _, err := ConfirmEvent(&stripeapi.Event{Type: stripeapi.EventTypePaymentIntentSucceeded}); err == nil {
		t.Fatal("expected error for event without data")
	}
	if _, _, err := ConfirmEvent(&stripeapi.Event{
		Type: stripeapi.EventTypePaymentIntentSucceeded,
		Data: &stripeapi.EventData{Raw: []byte(`{"object":"payment_intent"}`)},
	}); err == nil {
		t.Fatal("expected error for intent without id")
	}
}

func TestModeHandlesEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode Mode
		typ  stripeapi.EventType
		want bool
	}{
		{ModePaymentIntent, stripeapi.EventTypePaymentIntentSucceeded, true},
		{ModePaymentIntent, stripeapi.EventTypeCheckoutSessionCompleted, false},
		{ModeCheckoutSession, stripeapi.EventTypePaymentIntentSucceeded, false},
		{ModeCheckoutSession, stripeapi.EventTypeCheckoutSessionExpired, true},
		{ModeCheckoutSession, stripeapi.EventTypeCustomerCreated, true},
	}

	for _, tt := range tests {
		if got := tt.mode.HandlesEvent(tt.typ); got != tt.want {
			t.Errorf("%s.HandlesEvent(%s) = %v, want %v", tt.mode, tt.typ, got, tt.want)
		}
	}
}
