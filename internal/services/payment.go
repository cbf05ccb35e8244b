package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/afrobirthday/storefront/internal/db"
	"github.com/afrobirthday/storefront/internal/logging"
	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/observability"
	"github.com/afrobirthday/storefront/internal/payments"
	stripepay "github.com/afrobirthday/storefront/internal/payments/stripe"
	"github.com/afrobirthday/storefront/internal/pricing"
)

const orderDescription = "AfroBirthday personalized birthday video"

// SettingsRepository is the admin-editable configuration the services read.
type SettingsRepository interface {
	PricingSettings(ctx context.Context) (pricing.Settings, error)
	UpdatePricingSettings(ctx context.Context, settings pricing.Settings) error
	StripeSettings(ctx context.Context) (db.StripeSettings, error)
	UpdateStripeSettings(ctx context.Context, settings db.StripeSettings) error
}

var inputValidator = newInputValidator()

func newInputValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if label := field.Tag.Get("label"); label != "" {
			return label
		}
		return field.Name
	})
	return v
}

// CheckoutInput is the buyer's order form. ClientTotal is what the page
// displayed; it is never charged.
type CheckoutInput struct {
	OrderID        uuid.UUID
	Provider       models.PaymentProvider `validate:"required,oneof=stripe paypal" label:"provider"`
	Email          string                 `validate:"required,email,max=254" label:"email"`
	Message        string                 `validate:"max=2000" label:"message"`
	GiftNote       string                 `validate:"max=500" label:"giftNote"`
	MusicOption    models.MusicOption     `validate:"required,oneof=default custom" label:"musicOption"`
	MusicLink      string                 `validate:"omitempty,url,max=2048" label:"musicLink"`
	MusicFileURL   string                 `validate:"omitempty,url,max=2048" label:"musicFileUrl"`
	DeliveryMethod models.DeliveryMethod  `validate:"required,oneof=standard express" label:"deliveryMethod"`
	PhotoURL       string                 `validate:"required,url,max=2048" label:"photoUrl"`
	ClientTotal    string
}

type CheckoutResult struct {
	OrderID      uuid.UUID
	Provider     models.PaymentProvider
	AttemptRef   string
	ClientSecret string
	ApproveURL   string
	TotalCents   int64
}

// ConfirmResult is the order's payment state after a pull confirmation.
type ConfirmResult struct {
	Result ReconcileResult
	Status models.PaymentStatus
}

type PaymentServiceConfig struct {
	// BaseURL is the public site origin used for provider return links.
	BaseURL    string
	StripeMode stripepay.Mode
}

// PaymentService runs checkout and every confirmation path.
type PaymentService struct {
	orders     OrderRepository
	settings   SettingsRepository
	adapters   *payments.Registry
	reconciler *Reconciler
	resolver   pricing.Resolver
	config     PaymentServiceConfig
	logger     *slog.Logger
}

func NewPaymentService(
	orders OrderRepository,
	settings SettingsRepository,
	adapters *payments.Registry,
	reconciler *Reconciler,
	config PaymentServiceConfig,
	logger *slog.Logger,
) *PaymentService {
	config.BaseURL = strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	return &PaymentService{
		orders:     orders,
		settings:   settings,
		adapters:   adapters,
		reconciler: reconciler,
		config:     config,
		logger:     logger,
	}
}

func (s *PaymentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Providers lists the payment providers buyers can choose.
func (s *PaymentService) Providers() []models.PaymentProvider {
	if s == nil {
		return nil
	}
	return s.adapters.Providers()
}

// CurrentPricing returns the price snapshot checkout would use right now.
func (s *PaymentService) CurrentPricing(ctx context.Context) (pricing.Settings, error) {
	if s == nil || s.settings == nil {
		return pricing.Settings{}, fmt.Errorf("%w: payment service", ErrServiceUnavailable)
	}
	settings, err := s.settings.PricingSettings(ctx)
	if err != nil {
		return pricing.Settings{}, fmt.Errorf("failed to read pricing settings: %w", err)
	}
	return settings, nil
}

// Checkout records the order and opens a payment attempt for it. Repeating a
// checkout with the same order id returns the same order and, through the
// provider idempotency keys, the same attempt.
func (s *PaymentService) Checkout(ctx context.Context, input CheckoutInput) (CheckoutResult, error) {
	result := CheckoutResult{}
	if s == nil || s.orders == nil || s.settings == nil {
		return result, fmt.Errorf("%w: payment service", ErrServiceUnavailable)
	}

	span := sentry.StartSpan(
		ctx,
		"service.payment.checkout",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("Checkout"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.Count("checkout.received", 1)
	recordFailed := func(reason string) {
		meter.Count("checkout.failed", 1, sentry.WithAttributes(
			attribute.String("provider", string(input.Provider)),
			attribute.String("reason", reason),
		))
	}

	if err := validateCheckout(input); err != nil {
		recordFailed("invalid_input")
		return result, err
	}

	settings, err := s.settings.PricingSettings(ctx)
	if err != nil {
		recordFailed("pricing_unavailable")
		return result, fmt.Errorf("failed to read pricing settings: %w", err)
	}
	total, err := s.resolver.Resolve(settings, pricing.Options{
		Music:    input.MusicOption,
		Delivery: input.DeliveryMethod,
	})
	if err != nil {
		recordFailed("pricing_failed")
		if errors.Is(err, pricing.ErrInvalidOption) {
			return result, UserError{Message: err.Error()}
		}
		return result, fmt.Errorf("failed to resolve price: %w", err)
	}
	s.logClientTotal(ctx, input.ClientTotal, total)

	adapter, err := s.adapters.Get(input.Provider)
	if err != nil {
		recordFailed("provider_unavailable")
		return result, UserError{Message: fmt.Sprintf("Payment provider %s is not available", input.Provider)}
	}

	order, err := s.orders.Create(ctx, &db.Order{
		ID:             input.OrderID,
		Email:          strings.TrimSpace(input.Email),
		Message:        input.Message,
		GiftNote:       input.GiftNote,
		MusicOption:    input.MusicOption,
		MusicLink:      input.MusicLink,
		MusicFileURL:   input.MusicFileURL,
		DeliveryMethod: input.DeliveryMethod,
		PhotoURL:       input.PhotoURL,
		TotalCents:     total,
	})
	if err != nil {
		recordFailed("create_failed")
		return result, fmt.Errorf("failed to create order: %w", err)
	}
	logger = logger.With("order_id", order.ID, "provider", input.Provider)
	ctx = observability.WithOrder(ctx, order.ID.String(), string(input.Provider))
	meter = observability.MeterFromContext(ctx)
	if order.Status != models.StatusPending {
		recordFailed("order_settled")
		return result, fmt.Errorf("%w: order is already %s", db.ErrAttemptConflict, order.Status)
	}
	if order.ProviderAttemptRef != "" && order.PaymentProvider != input.Provider {
		recordFailed("attempt_conflict")
		logger.Warn("order already has a payment attempt with another provider", "existing_provider", order.PaymentProvider)
		return result, fmt.Errorf("%w: order already has a %s payment attempt", db.ErrAttemptConflict, order.PaymentProvider)
	}
	if order.TotalCents != total {
		logger.Info("reusing stored order total", "stored_cents", order.TotalCents, "resolved_cents", total)
	}

	attempt, err := adapter.OpenAttempt(ctx, payments.AttemptRequest{
		OrderID:     order.ID,
		AmountCents: order.TotalCents,
		Email:       order.Email,
		Description: orderDescription,
		ReturnURL:   s.returnURL(input.Provider, order.ID),
		CancelURL:   s.siteURL("/checkout/failed?orderId=" + order.ID.String()),
	})
	if err != nil {
		recordFailed("open_attempt_failed")
		return result, fmt.Errorf("failed to open %s payment: %w", input.Provider, err)
	}

	if err := s.orders.AttachProviderAttempt(ctx, order.ID, input.Provider, attempt.AttemptRef); err != nil {
		recordFailed("attach_failed")
		if errors.Is(err, db.ErrAttemptConflict) {
			logger.Warn("order already has a different payment attempt", "attempt_ref", attempt.AttemptRef)
		}
		return result, fmt.Errorf("failed to attach payment attempt: %w", err)
	}

	meter.Count("checkout.opened", 1, sentry.WithAttributes(
		attribute.String("provider", string(input.Provider)),
	))
	logger.Info("checkout opened", "attempt_ref", attempt.AttemptRef, "total_cents", order.TotalCents)

	return CheckoutResult{
		OrderID:      order.ID,
		Provider:     input.Provider,
		AttemptRef:   attempt.AttemptRef,
		ClientSecret: attempt.ClientSecret,
		ApproveURL:   attempt.RedirectURL,
		TotalCents:   order.TotalCents,
	}, nil
}

func validateCheckout(input CheckoutInput) error {
	if input.OrderID == uuid.Nil {
		return UserError{Message: "orderId is required"}
	}
	if err := inputValidator.Struct(input); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			return UserError{Message: fmt.Sprintf("%s is invalid", validationErrs[0].Field())}
		}
		return UserError{Message: "Invalid order"}
	}
	return nil
}

func (s *PaymentService) logClientTotal(ctx context.Context, clientTotal string, resolved int64) {
	clientTotal = strings.TrimSpace(clientTotal)
	if clientTotal == "" {
		return
	}
	cents, err := pricing.ParseCents(clientTotal)
	if err != nil || cents != resolved {
		s.loggerFromContext(ctx).Debug("ignoring client-supplied total", "client_total", clientTotal, "resolved_cents", resolved)
	}
}

func (s *PaymentService) returnURL(provider models.PaymentProvider, orderID uuid.UUID) string {
	if provider == models.ProviderPayPal {
		return s.siteURL("/paypal/return?orderId=" + orderID.String())
	}
	return s.siteURL("/success?orderId=" + orderID.String())
}

func (s *PaymentService) siteURL(path string) string {
	return s.config.BaseURL + path
}

// ConfirmReturn is the buyer-facing pull path. The attempt must be the one
// recorded on the order.
func (s *PaymentService) ConfirmReturn(ctx context.Context, provider models.PaymentProvider, orderID uuid.UUID, attemptRef string) (ConfirmResult, error) {
	if s == nil || s.orders == nil {
		return ConfirmResult{}, fmt.Errorf("%w: payment service", ErrServiceUnavailable)
	}
	attemptRef = strings.TrimSpace(attemptRef)
	if orderID == uuid.Nil || attemptRef == "" {
		return ConfirmResult{}, UserError{Message: "orderId and payment reference are required"}
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if order.PaymentProvider != provider || order.ProviderAttemptRef != attemptRef {
		s.loggerFromContext(ctx).Warn("payment reference does not match order",
			"order_id", orderID,
			"provider", provider,
			"attempt_ref", attemptRef,
		)
		return ConfirmResult{}, ErrAttemptMismatch
	}

	return s.confirm(ctx, order)
}

// RefreshOrder polls the provider for an order's attempt. Settled orders are
// returned without a provider call.
func (s *PaymentService) RefreshOrder(ctx context.Context, orderID uuid.UUID) (ConfirmResult, error) {
	if s == nil || s.orders == nil {
		return ConfirmResult{}, fmt.Errorf("%w: payment service", ErrServiceUnavailable)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if order.Status.IsTerminal() {
		return ConfirmResult{Result: ReconcileReplayed, Status: order.Status}, nil
	}
	if order.ProviderAttemptRef == "" {
		return ConfirmResult{}, UserError{Message: "Order has no payment attempt to refresh"}
	}

	return s.confirm(ctx, order)
}

func (s *PaymentService) confirm(ctx context.Context, order *db.Order) (ConfirmResult, error) {
	adapter, err := s.adapters.Get(order.PaymentProvider)
	if err != nil {
		return ConfirmResult{}, err
	}

	confirmation, err := adapter.Confirm(ctx, order.ProviderAttemptRef)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("failed to confirm %s payment: %w", order.PaymentProvider, err)
	}

	result, err := s.reconciler.Reconcile(ctx, order.PaymentProvider, confirmation)
	if err != nil {
		return ConfirmResult{}, err
	}

	return ConfirmResult{Result: result, Status: statusForOutcome(confirmation.Outcome)}, nil
}

func statusForOutcome(outcome payments.Outcome) models.PaymentStatus {
	switch outcome {
	case payments.OutcomeSucceeded:
		return models.StatusPaid
	case payments.OutcomeFailed:
		return models.StatusCanceled
	default:
		return models.StatusPending
	}
}

// HandleStripeEvent is the push path for a verified Stripe event. Event types
// with no lifecycle meaning, or that belong to the other checkout mode, are
// acknowledged with a nil error.
func (s *PaymentService) HandleStripeEvent(ctx context.Context, event *stripeapi.Event) (ReconcileResult, bool, error) {
	if s == nil || s.reconciler == nil {
		return 0, false, fmt.Errorf("%w: payment service", ErrServiceUnavailable)
	}
	if event == nil {
		return 0, false, fmt.Errorf("stripe event is required")
	}

	mode := s.config.StripeMode
	if mode == "" {
		mode = stripepay.ModePaymentIntent
	}
	if !mode.HandlesEvent(event.Type) {
		return 0, false, nil
	}

	confirmation, handled, err := stripepay.ConfirmEvent(event)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read stripe event %s: %w", event.ID, err)
	}
	if !handled {
		return 0, false, nil
	}

	result, err := s.reconciler.Reconcile(ctx, models.ProviderStripe, confirmation)
	if err != nil {
		return 0, true, err
	}
	return result, true, nil
}
