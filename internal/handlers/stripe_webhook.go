package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/afrobirthday/storefront/internal/cache"
	"github.com/afrobirthday/storefront/internal/db"
	stripepay "github.com/afrobirthday/storefront/internal/payments/stripe"
	"github.com/afrobirthday/storefront/internal/services"
)

// stripeWebhookIdempotencyTTL is how long webhook event IDs are kept for deduplication
const stripeWebhookIdempotencyTTL = 24 * time.Hour

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if h.stripeRouter == nil {
		logger.Error("stripe event router not configured")
		http.Error(w, "Webhook handler not configured", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	event, err := stripepay.ReadWebhookEvent(r, h.config.StripeWebhookSecret)
	if err != nil {
		logger.Warn("rejected Stripe webhook payload", "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	if event == nil || event.ID == "" {
		logger.Error("missing Stripe event ID")
		http.Error(w, "Missing event ID", http.StatusBadRequest)
		return
	}
	logger = logger.With("event_id", event.ID, "type", event.Type)

	cacheKey := cache.EventKey("stripe", event.ID)
	seen, err := h.cacheProvider.Seen(ctx, cacheKey)
	if err != nil {
		logger.Warn("failed to check webhook dedupe cache", "error", err)
	}
	if seen {
		logger.Info("webhook already processed")
		w.WriteHeader(http.StatusOK)
		return
	}

	processErr := h.stripeRouter.Handle(ctx, event)
	switch {
	case processErr == nil:
	case errors.Is(processErr, services.ErrUnknownAttempt):
		http.Error(w, "Unknown payment", http.StatusNotFound)
		return
	case errors.Is(processErr, db.ErrTerminalConflict), errors.Is(processErr, services.ErrAttemptMismatch):
		// Redelivery cannot change the outcome; the router already logged it.
	default:
		logger.Error("failed to process Stripe webhook", "error", processErr)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	if err := h.cacheProvider.Remember(ctx, cacheKey, stripeWebhookIdempotencyTTL); err != nil {
		logger.Error("failed to mark webhook as processed in cache", "error", err)
	}
	w.WriteHeader(http.StatusOK)
}
