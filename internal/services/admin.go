package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/afrobirthday/storefront/internal/crypto"
	"github.com/afrobirthday/storefront/internal/db"
	"github.com/afrobirthday/storefront/internal/logging"
	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/observability"
	"github.com/afrobirthday/storefront/internal/pricing"
)

const (
	defaultOrderListLimit = 500
	maxNotesLength        = 5000
)

var (
	ErrAdminOrderNotFound      = errors.New("order not found")
	ErrAdminServiceUnavailable = errors.New("admin service unavailable")
)

// UpdateOrderInput holds back-office edits. Nil fields are left unchanged.
type UpdateOrderInput struct {
	OrderStatus *string
	Notes       *string
	Cost        *decimal.Decimal
}

// PricingInput is a partial price update in dollars.
type PricingInput struct {
	Base            *decimal.Decimal
	CustomSong      *decimal.Decimal
	ExpressDelivery *decimal.Decimal
}

// StripeSettingsView is what staff see of the stored Stripe keys. The secret
// key is never returned in full.
type StripeSettingsView struct {
	SecretKeyMasked string
	HasSecretKey    bool
	PublishableKey  string
}

type AdminService struct {
	orders   OrderRepository
	settings SettingsRepository
	logger   *slog.Logger
}

func NewAdminService(orders OrderRepository, settings SettingsRepository, logger *slog.Logger) *AdminService {
	return &AdminService{
		orders:   orders,
		settings: settings,
		logger:   logger,
	}
}

func (s *AdminService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *AdminService) available() error {
	if s == nil || s.orders == nil || s.settings == nil {
		return ErrAdminServiceUnavailable
	}
	return nil
}

func (s *AdminService) ListOrders(ctx context.Context, limit int) ([]*db.Order, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultOrderListLimit {
		limit = defaultOrderListLimit
	}

	orders, err := s.orders.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *AdminService) GetOrder(ctx context.Context, orderID uuid.UUID) (*db.Order, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrAdminOrderNotFound, err)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// UpdateOrder applies back-office edits. Payment status, the provider attempt
// and the total are not editable here.
func (s *AdminService) UpdateOrder(ctx context.Context, orderID uuid.UUID, input UpdateOrderInput) (*db.Order, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	span := sentry.StartSpan(
		ctx,
		"service.admin.update_order",
		sentry.WithOpName("service.admin"),
		sentry.WithDescription("UpdateOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	recordFailed := func(reason string) {
		meter.Count("admin.order_update.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	update, err := backOfficeUpdate(input)
	if err != nil {
		recordFailed("invalid_input")
		return nil, err
	}

	order, err := s.orders.UpdateBackOffice(ctx, orderID, update)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			recordFailed("order_not_found")
			return nil, fmt.Errorf("%w: %w", ErrAdminOrderNotFound, err)
		}
		recordFailed("update_failed")
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	meter.Count("admin.order_update.processed", 1)
	s.loggerFromContext(ctx).Info("order updated by admin", "order_id", orderID, "order_status", order.OrderStatus)
	return order, nil
}

func backOfficeUpdate(input UpdateOrderInput) (db.BackOfficeUpdate, error) {
	var update db.BackOfficeUpdate

	if input.OrderStatus != nil {
		status := models.FulfillmentStatus(strings.ToLower(strings.TrimSpace(*input.OrderStatus)))
		if !status.Valid() {
			return update, UserError{Message: "Invalid order status"}
		}
		update.OrderStatus = &status
	}

	if input.Notes != nil {
		if utf8.RuneCountInString(*input.Notes) > maxNotesLength {
			return update, UserError{Message: fmt.Sprintf("Notes must be at most %d characters", maxNotesLength)}
		}
		notes := *input.Notes
		update.Notes = &notes
	}

	if input.Cost != nil {
		cents, err := pricing.DollarsToCents(*input.Cost)
		if err != nil {
			return update, UserError{Message: "Invalid cost value"}
		}
		update.CostCents = &cents
	}

	if update.OrderStatus == nil && update.Notes == nil && update.CostCents == nil {
		return update, UserError{Message: "Nothing to update"}
	}
	return update, nil
}

func (s *AdminService) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	if err := s.available(); err != nil {
		return err
	}

	if err := s.orders.Delete(ctx, orderID); err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			return fmt.Errorf("%w: %w", ErrAdminOrderNotFound, err)
		}
		return fmt.Errorf("failed to delete order: %w", err)
	}

	s.loggerFromContext(ctx).Warn("order deleted by admin", "order_id", orderID)
	return nil
}

func (s *AdminService) Pricing(ctx context.Context) (pricing.Settings, error) {
	if err := s.available(); err != nil {
		return pricing.Settings{}, err
	}
	settings, err := s.settings.PricingSettings(ctx)
	if err != nil {
		return pricing.Settings{}, fmt.Errorf("failed to read pricing settings: %w", err)
	}
	return settings, nil
}

// UpdatePricing merges input into the stored prices and returns the result.
func (s *AdminService) UpdatePricing(ctx context.Context, input PricingInput) (pricing.Settings, error) {
	if err := s.available(); err != nil {
		return pricing.Settings{}, err
	}

	current, err := s.settings.PricingSettings(ctx)
	if err != nil {
		return pricing.Settings{}, fmt.Errorf("failed to read pricing settings: %w", err)
	}

	fields := []struct {
		name   string
		value  *decimal.Decimal
		target *int64
	}{
		{"base", input.Base, &current.BaseCents},
		{"customSong", input.CustomSong, &current.CustomSongCents},
		{"expressDelivery", input.ExpressDelivery, &current.ExpressDeliveryCents},
	}
	for _, field := range fields {
		if field.value == nil {
			continue
		}
		cents, err := pricing.DollarsToCents(*field.value)
		if err != nil {
			return pricing.Settings{}, UserError{Message: "Invalid " + field.name}
		}
		*field.target = cents
	}

	if err := s.settings.UpdatePricingSettings(ctx, current); err != nil {
		return pricing.Settings{}, fmt.Errorf("failed to update pricing settings: %w", err)
	}

	s.loggerFromContext(ctx).Info("pricing updated",
		"base_cents", current.BaseCents,
		"custom_song_cents", current.CustomSongCents,
		"express_delivery_cents", current.ExpressDeliveryCents,
	)
	return current, nil
}

func (s *AdminService) StripeSettings(ctx context.Context) (StripeSettingsView, error) {
	if err := s.available(); err != nil {
		return StripeSettingsView{}, err
	}

	settings, err := s.settings.StripeSettings(ctx)
	if err != nil {
		return StripeSettingsView{}, fmt.Errorf("failed to read stripe settings: %w", err)
	}
	return StripeSettingsView{
		SecretKeyMasked: crypto.Mask(settings.SecretKey),
		HasSecretKey:    settings.SecretKey != "",
		PublishableKey:  settings.PublishableKey,
	}, nil
}

func (s *AdminService) UpdateStripeSettings(ctx context.Context, secretKey, publishableKey string) error {
	if err := s.available(); err != nil {
		return err
	}

	secretKey = strings.TrimSpace(secretKey)
	publishableKey = strings.TrimSpace(publishableKey)
	if secretKey != "" && !strings.HasPrefix(secretKey, "sk_") {
		return UserError{Message: "Invalid secret key format"}
	}
	if publishableKey != "" && !strings.HasPrefix(publishableKey, "pk_") {
		return UserError{Message: "Invalid publishable key format"}
	}

	err := s.settings.UpdateStripeSettings(ctx, db.StripeSettings{
		SecretKey:      secretKey,
		PublishableKey: publishableKey,
	})
	if err != nil {
		if errors.Is(err, db.ErrSealerUnavailable) {
			return UserError{Message: "Stripe keys cannot be stored: encryption key is not configured"}
		}
		return fmt.Errorf("failed to update stripe settings: %w", err)
	}

	s.loggerFromContext(ctx).Info("stripe settings updated", "has_secret_key", secretKey != "")
	return nil
}
