package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/afrobirthday/storefront/internal/models"
)

func stripeEventPayload(t *testing.T, eventID, eventType, intentID, status, orderID string) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"id":     eventID,
		"object": "event",
		"type":   eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":       intentID,
				"object":   "payment_intent",
				"status":   status,
				"metadata": map[string]string{"orderId": orderID},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func signedWebhookRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  secret,
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestStripeWebhook_ExactlyOnceAcrossRedeliveries(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	order := env.seedOrder(t, models.ProviderStripe, "pi_once")

	// evt_1 is delivered twice (cache short-circuit), evt_2 is a distinct
	// event for the same attempt (store-level replay).
	deliveries := []string{"evt_1", "evt_1", "evt_2"}
	for _, eventID := range deliveries {
		payload := stripeEventPayload(t, eventID, "payment_intent.succeeded", "pi_once", "succeeded", order.ID.String())
		rec := httptest.NewRecorder()
		env.handlers.StripeWebhook(rec, signedWebhookRequest(t, payload, testWebhookSecret))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", eventID, rec.Code, rec.Body.String())
		}
	}

	if got := env.status(t, order.ID); got != models.StatusPaid {
		t.Fatalf("expected paid, got %s", got)
	}
	if paid, canceled := env.notifier.counts(); paid != 1 || canceled != 0 {
		t.Fatalf("expected one paid notification, got paid=%d canceled=%d", paid, canceled)
	}
}

func TestStripeWebhook_ConcurrentDeliveries(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	order := env.seedOrder(t, models.ProviderStripe, "pi_concurrent")

	requests := make([]*http.Request, 20)
	for i := range requests {
		eventID := fmt.Sprintf("evt_concurrent_%d", i)
		payload := stripeEventPayload(t, eventID, "payment_intent.succeeded", "pi_concurrent", "succeeded", order.ID.String())
		requests[i] = signedWebhookRequest(t, payload, testWebhookSecret)
	}

	var wg sync.WaitGroup
	codes := make(chan int, len(requests))
	for _, req := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			env.handlers.StripeWebhook(rec, req)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		if code != http.StatusOK {
			t.Fatalf("expected every delivery to be acknowledged, got %d", code)
		}
	}
	if paid, _ := env.notifier.counts(); paid != 1 {
		t.Fatalf("expected exactly one notification, got %d", paid)
	}
}

func TestStripeWebhook_Responses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		build      func(t *testing.T, env *testEnv) (*http.Request, uuid.UUID)
		wantStatus int
		wantOrder  models.PaymentStatus
		wantPaid   int
	}{
		{
			name: "bad signature",
			build: func(t *testing.T, env *testEnv) (*http.Request, uuid.UUID) {
				order := env.seedOrder(t, models.ProviderStripe, "pi_forged")
				payload := stripeEventPayload(t, "evt_forged", "payment_intent.succeeded", "pi_forged", "succeeded", order.ID.String())
				return signedWebhookRequest(t, payload, "whsec_attacker"), order.ID
			},
			wantStatus: http.StatusBadRequest,
			wantOrder:  models.StatusPending,
		},
		{
			name: "missing signature",
			build: func(t *testing.T, env *testEnv) (*http.Request, uuid.UUID) {
				order := env.seedOrder(t, models.ProviderStripe, "pi_unsigned")
				payload := stripeEventPayload(t, "evt_unsigned", "payment_intent.succeeded", "pi_unsigned", "succeeded", order.ID.String())
				return httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload)), order.ID
			},
			wantStatus: http.StatusBadRequest,
			wantOrder:  models.StatusPending,
		},
		{
			name: "unknown attempt",
			build: func(t *testing.T, env *testEnv) (*http.Request, uuid.UUID) {
				order := env.seedOrder(t, models.ProviderStripe, "pi_known")
				payload := stripeEventPayload(t, "evt_unknown", "payment_intent.succeeded", "pi_unknown", "succeeded", "")
				return signedWebhookRequest(t, payload, testWebhookSecret), order.ID
			},
			wantStatus: http.StatusNotFound,
			wantOrder:  models.StatusPending,
		},
		{
			name: "metadata names another order",
			build: func(t *testing.T, env *testEnv) (*http.Request, uuid.UUID) {
				order := env.seedOrder(t, models.ProviderStripe, "pi_crossed")
				other := env.seedOrder(t, models.ProviderStripe, "pi_other")
				payload := stripeEventPayload(t, "evt_crossed", "payment_intent.succeeded", "pi_crossed", "succeeded", other.ID.String())
				return signedWebhookRequest(t, payload, testWebhookSecret), order.ID
			},
			wantStatus: http.StatusOK,
			wantOrder:  models.StatusPending,
		},
		{
			name: "unhandled event type",
			build: func(t *testing.T, env *testEnv) (*http.Request, uuid.UUID) {
				order := env.seedOrder(t, models.ProviderStripe, "pi_created")
				payload := stripeEventPayload(t, "evt_created", "payment_intent.created", "pi_created", "requires_payment_method", order.ID.String())
				return signedWebhookRequest(t, payload, testWebhookSecret), order.ID
			},
			wantStatus: http.StatusOK,
			wantOrder:  models.StatusPending,
		},
		{
			name: "session event in intent mode",
			build: func(t *testing.T, env *testEnv) (*http.Request, uuid.UUID) {
				order := env.seedOrder(t, models.ProviderStripe, "pi_session")
				payload := stripeEventPayload(t, "evt_session", "checkout.session.completed", "cs_session", "complete", order.ID.String())
				return signedWebhookRequest(t, payload, testWebhookSecret), order.ID
			},
			wantStatus: http.StatusOK,
			wantOrder:  models.StatusPending,
		},
		{
			name: "canceled intent",
			build: func(t *testing.T, env *testEnv) (*http.Request, uuid.UUID) {
				order := env.seedOrder(t, models.ProviderStripe, "pi_canceled")
				payload := stripeEventPayload(t, "evt_canceled", "payment_intent.canceled", "pi_canceled", "canceled", order.ID.String())
				return signedWebhookRequest(t, payload, testWebhookSecret), order.ID
			},
			wantStatus: http.StatusOK,
			wantOrder:  models.StatusCanceled,
		},
		{
			name: "success",
			build: func(t *testing.T, env *testEnv) (*http.Request, uuid.UUID) {
				order := env.seedOrder(t, models.ProviderStripe, "pi_paid")
				payload := stripeEventPayload(t, "evt_paid", "payment_intent.succeeded", "pi_paid", "succeeded", order.ID.String())
				return signedWebhookRequest(t, payload, testWebhookSecret), order.ID
			},
			wantStatus: http.StatusOK,
			wantOrder:  models.StatusPaid,
			wantPaid:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			req, orderID := tt.build(t, env)
			rec := httptest.NewRecorder()
			env.handlers.StripeWebhook(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if got := env.status(t, orderID); got != tt.wantOrder {
				t.Fatalf("expected order %s, got %s", tt.wantOrder, got)
			}
			if paid, _ := env.notifier.counts(); paid != tt.wantPaid {
				t.Fatalf("expected %d paid notifications, got %d", tt.wantPaid, paid)
			}
		})
	}
}

func TestStripeWebhook_TerminalConflictIsAcknowledged(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	order := env.seedOrder(t, models.ProviderStripe, "pi_settled")

	first := stripeEventPayload(t, "evt_paid", "payment_intent.succeeded", "pi_settled", "succeeded", order.ID.String())
	rec := httptest.NewRecorder()
	env.handlers.StripeWebhook(rec, signedWebhookRequest(t, first, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("paid: expected 200, got %d", rec.Code)
	}

	late := stripeEventPayload(t, "evt_late_cancel", "payment_intent.canceled", "pi_settled", "canceled", order.ID.String())
	rec = httptest.NewRecorder()
	env.handlers.StripeWebhook(rec, signedWebhookRequest(t, late, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("late cancel: expected 200, got %d", rec.Code)
	}

	if got := env.status(t, order.ID); got != models.StatusPaid {
		t.Fatalf("paid order must stay paid, got %s", got)
	}
	if paid, canceled := env.notifier.counts(); paid != 1 || canceled != 0 {
		t.Fatalf("unexpected notifications paid=%d canceled=%d", paid, canceled)
	}
}
