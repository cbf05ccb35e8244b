package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/afrobirthday/storefront/internal/db"
	"github.com/afrobirthday/storefront/internal/logging"
	"github.com/afrobirthday/storefront/internal/observability"
	"github.com/afrobirthday/storefront/internal/services"
)

type stripeEventHandler interface {
	HandleStripeEvent(ctx context.Context, event *stripeapi.Event) (services.ReconcileResult, bool, error)
}

// StripeEventRouter feeds verified Stripe events into reconciliation.
type StripeEventRouter struct {
	service stripeEventHandler
	logger  *slog.Logger
}

func NewStripeEventRouter(service *services.PaymentService, logger *slog.Logger) *StripeEventRouter {
	return &StripeEventRouter{
		service: service,
		logger:  logger,
	}
}

func (r *StripeEventRouter) Handle(ctx context.Context, event *stripeapi.Event) error {
	span := sentry.StartSpan(
		ctx,
		"handler.stripe_router.handle",
		sentry.WithOpName("handler.stripe_router"),
		sentry.WithDescription("StripeEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))
	meter.Count("webhook.router.received", 1)
	recordFailed := func(reason string) {
		meter.Count("webhook.router.failed", 1, sentry.WithAttributes(attribute.String("reason", reason)))
	}

	if event == nil {
		recordFailed("missing_event")
		return fmt.Errorf("missing stripe event")
	}
	if event.Data == nil {
		recordFailed("missing_event_data")
		return fmt.Errorf("missing stripe event data")
	}
	meter.SetAttributes(attribute.String("webhook.event_type", string(event.Type)))

	ctx = logging.With(ctx, r.logger, "event_id", event.ID, "type", event.Type)
	logger := logging.FromContext(ctx, r.logger)

	result, handled, err := r.service.HandleStripeEvent(ctx, event)
	switch {
	case err == nil:
	case errors.Is(err, db.ErrTerminalConflict):
		recordFailed("terminal_conflict")
		span.Status = sentry.SpanStatusAlreadyExists
		return err
	case errors.Is(err, services.ErrUnknownAttempt):
		recordFailed("unknown_attempt")
		logger.Warn("stripe event for unknown payment attempt", "error", err)
		span.Status = sentry.SpanStatusNotFound
		return err
	case errors.Is(err, services.ErrAttemptMismatch):
		recordFailed("attempt_mismatch")
		span.Status = sentry.SpanStatusInvalidArgument
		return err
	default:
		recordFailed("reconcile_failed")
		span.Status = sentry.SpanStatusInternalError
		return err
	}

	if !handled {
		logger.Info("unhandled Stripe event type")
		meter.Count("webhook.router.unhandled", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	}

	meter.Count("webhook.router.processed", 1, sentry.WithAttributes(attribute.String("result", result.String())))
	logger.Info("stripe event reconciled", "result", result.String())
	span.Status = sentry.SpanStatusOK
	return nil
}
