package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/afrobirthday/storefront/internal/db"
	"github.com/afrobirthday/storefront/internal/logging"
	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/observability"
	"github.com/afrobirthday/storefront/internal/payments"
)

// OrderRepository is the order storage the services depend on. The payment
// transitions must be single conditional writes.
type OrderRepository interface {
	Create(ctx context.Context, order *db.Order) (*db.Order, error)
	GetByID(ctx context.Context, orderID uuid.UUID) (*db.Order, error)
	GetByAttemptRef(ctx context.Context, provider models.PaymentProvider, attemptRef string) (*db.Order, error)
	List(ctx context.Context, limit int) ([]*db.Order, error)
	AttachProviderAttempt(ctx context.Context, orderID uuid.UUID, provider models.PaymentProvider, attemptRef string) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, captureRef string) (db.TransitionResult, error)
	MarkCanceled(ctx context.Context, orderID uuid.UUID) (db.TransitionResult, error)
	UpdateBackOffice(ctx context.Context, orderID uuid.UUID, update db.BackOfficeUpdate) (*db.Order, error)
	Delete(ctx context.Context, orderID uuid.UUID) error
}

// Notifier runs the side effects of a terminal transition. It never reports
// failures back.
type Notifier interface {
	OrderPaid(ctx context.Context, order *db.Order)
	OrderCanceled(ctx context.Context, order *db.Order)
}

type ReconcileResult int

const (
	// ReconcileApplied means this call moved the order to a terminal state.
	ReconcileApplied ReconcileResult = iota + 1
	// ReconcileReplayed means the order was already in the confirmed state.
	ReconcileReplayed
	// ReconcilePending means the provider has no final answer yet.
	ReconcilePending
)

func (r ReconcileResult) String() string {
	switch r {
	case ReconcileApplied:
		return "applied"
	case ReconcileReplayed:
		return "replayed"
	case ReconcilePending:
		return "pending"
	default:
		return "unknown"
	}
}

// Reconciler applies provider confirmations to orders. Every confirmation
// path (webhook, redirect capture, status poll) goes through Reconcile.
type Reconciler struct {
	orders   OrderRepository
	notifier Notifier
	logger   *slog.Logger
}

func NewReconciler(orders OrderRepository, notifier Notifier, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		orders:   orders,
		notifier: notifier,
		logger:   logger,
	}
}

func (r *Reconciler) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, r.logger)
}

// Reconcile settles the order that owns confirmation.AttemptRef. The store's
// conditional write decides whether this call performed the transition, and
// notifications fire only when it did.
func (r *Reconciler) Reconcile(ctx context.Context, provider models.PaymentProvider, confirmation payments.Confirmation) (ReconcileResult, error) {
	if r == nil || r.orders == nil {
		return 0, fmt.Errorf("%w: reconciler", ErrServiceUnavailable)
	}

	span := sentry.StartSpan(
		ctx,
		"service.reconcile",
		sentry.WithOpName("service.reconcile"),
		sentry.WithDescription("Reconcile"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := r.loggerFromContext(ctx).With(
		"provider", provider,
		"attempt_ref", confirmation.AttemptRef,
		"outcome", confirmation.Outcome.String(),
	)
	meter := observability.MeterFromContext(ctx)
	providerAttr := attribute.String("provider", string(provider))
	meter.Count("reconcile.received", 1, sentry.WithAttributes(providerAttr))
	recordFailed := func(reason string) {
		meter.Count("reconcile.failed", 1, sentry.WithAttributes(
			providerAttr,
			attribute.String("reason", reason),
		))
	}

	if confirmation.AttemptRef == "" {
		recordFailed("missing_attempt_ref")
		return 0, fmt.Errorf("%w: empty attempt reference", ErrUnknownAttempt)
	}

	order, err := r.orders.GetByAttemptRef(ctx, provider, confirmation.AttemptRef)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			recordFailed("unknown_attempt")
			logger.Warn("confirmation for unknown payment attempt")
			return 0, fmt.Errorf("%w: %s %s", ErrUnknownAttempt, provider, confirmation.AttemptRef)
		}
		recordFailed("lookup_failed")
		return 0, fmt.Errorf("failed to look up order by attempt: %w", err)
	}
	logger = logger.With("order_id", order.ID)
	ctx = observability.WithOrder(ctx, order.ID.String(), string(provider))
	meter = observability.MeterFromContext(ctx)

	if confirmation.OrderID != "" && confirmation.OrderID != order.ID.String() {
		recordFailed("order_mismatch")
		logger.Warn("provider metadata names a different order", "metadata_order_id", confirmation.OrderID)
		return 0, fmt.Errorf("%w: provider reported order %s", ErrAttemptMismatch, confirmation.OrderID)
	}

	var transition db.TransitionResult
	switch confirmation.Outcome {
	case payments.OutcomePending:
		meter.Count("reconcile.pending", 1, sentry.WithAttributes(providerAttr))
		logger.Debug("payment attempt still pending")
		return ReconcilePending, nil
	case payments.OutcomeSucceeded:
		transition, err = r.orders.MarkPaid(ctx, order.ID, confirmation.CaptureRef)
	case payments.OutcomeFailed:
		transition, err = r.orders.MarkCanceled(ctx, order.ID)
	default:
		recordFailed("unknown_outcome")
		return 0, fmt.Errorf("unknown payment outcome %d", confirmation.Outcome)
	}
	if err != nil {
		if errors.Is(err, db.ErrTerminalConflict) {
			recordFailed("terminal_conflict")
			logger.Error("confirmation contradicts settled order", "error", err)
			return 0, err
		}
		recordFailed("transition_failed")
		return 0, fmt.Errorf("failed to apply %s confirmation: %w", confirmation.Outcome, err)
	}

	if transition != db.TransitionApplied {
		meter.Count("reconcile.replayed", 1, sentry.WithAttributes(providerAttr))
		logger.Info("confirmation already applied")
		return ReconcileReplayed, nil
	}

	meter.Count("reconcile.applied", 1, sentry.WithAttributes(
		providerAttr,
		attribute.String("outcome", confirmation.Outcome.String()),
	))
	logger.Info("order settled")

	settled := r.settledOrder(ctx, order, confirmation)
	if r.notifier != nil {
		if confirmation.Outcome == payments.OutcomeSucceeded {
			r.notifier.OrderPaid(ctx, settled)
		} else {
			r.notifier.OrderCanceled(ctx, settled)
		}
	}

	return ReconcileApplied, nil
}

// settledOrder re-reads the order after its transition. When the read fails
// the pre-transition copy is patched instead so notifications still go out.
func (r *Reconciler) settledOrder(ctx context.Context, order *db.Order, confirmation payments.Confirmation) *db.Order {
	fresh, err := r.orders.GetByID(ctx, order.ID)
	if err == nil {
		return fresh
	}
	r.loggerFromContext(ctx).Warn("failed to reload settled order", "error", err, "order_id", order.ID)

	patched := *order
	if confirmation.Outcome == payments.OutcomeSucceeded {
		patched.Status = models.StatusPaid
		patched.ProviderCaptureRef = confirmation.CaptureRef
	} else {
		patched.Status = models.StatusCanceled
	}
	return &patched
}
