package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/afrobirthday/storefront/internal/cache"
	"github.com/afrobirthday/storefront/internal/config"
	"github.com/afrobirthday/storefront/internal/db"
	"github.com/afrobirthday/storefront/internal/logging"
	"github.com/afrobirthday/storefront/internal/payments"
	"github.com/afrobirthday/storefront/internal/services"
)

const (
	maxWebhookBodyBytes = 1 << 20 // 1 MB
	maxJSONBodyBytes    = 64 << 10
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers provides the storefront's HTTP request handlers.
type Handlers struct {
	config         *config.Config
	db             Pinger
	paymentService *services.PaymentService
	adminService   *services.AdminService
	authService    *services.AuthService
	cacheProvider  cache.Provider
	stripeRouter   *StripeEventRouter
	logger         *slog.Logger
}

type Dependencies struct {
	Config         *config.Config
	DB             Pinger
	PaymentService *services.PaymentService
	AdminService   *services.AdminService
	AuthService    *services.AuthService
	CacheProvider  cache.Provider
	StripeRouter   *StripeEventRouter
	Logger         *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.PaymentService == nil {
		return nil, fmt.Errorf("handlers dependencies: paymentService is required")
	}
	if deps.AdminService == nil {
		return nil, fmt.Errorf("handlers dependencies: adminService is required")
	}
	if deps.AuthService == nil {
		return nil, fmt.Errorf("handlers dependencies: authService is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.StripeRouter == nil && deps.Config.StripeEnabled() {
		return nil, fmt.Errorf("handlers dependencies: stripeRouter is required when Stripe is configured")
	}

	return &Handlers{
		config:         deps.Config,
		db:             deps.DB,
		paymentService: deps.PaymentService,
		adminService:   deps.AdminService,
		authService:    deps.AuthService,
		cacheProvider:  deps.CacheProvider,
		stripeRouter:   deps.StripeRouter,
		logger:         logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, r, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are accepted
// so older clients keep working.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return services.UserError{Message: "Invalid JSON body"}
	}
	return nil
}

// writeServiceError maps a service error to a status code and a message safe
// to show the caller. Unexpected errors are logged and reported as 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	logger := h.loggerFromContext(r.Context())

	var userErr services.UserError
	switch {
	case errors.As(err, &userErr):
		h.writeError(w, r, http.StatusBadRequest, userErr.Message)
	case errors.Is(err, db.ErrOrderNotFound), errors.Is(err, services.ErrAdminOrderNotFound):
		logger.Warn("order not found", "action", action)
		h.writeError(w, r, http.StatusNotFound, "Order not found")
	case errors.Is(err, services.ErrUnknownAttempt):
		logger.Warn("unknown payment attempt", "action", action, "error", err)
		h.writeError(w, r, http.StatusNotFound, "Payment not found")
	case errors.Is(err, services.ErrAttemptMismatch):
		h.writeError(w, r, http.StatusBadRequest, "Payment does not belong to this order")
	case errors.Is(err, db.ErrAttemptConflict):
		h.writeError(w, r, http.StatusConflict, "Order already has a payment in progress")
	case errors.Is(err, db.ErrTerminalConflict):
		h.writeError(w, r, http.StatusConflict, "Order payment already settled")
	case errors.Is(err, payments.ErrProviderUnavailable),
		errors.Is(err, services.ErrServiceUnavailable),
		errors.Is(err, services.ErrAdminServiceUnavailable):
		logger.Error("service unavailable", "action", action, "error", err)
		h.writeError(w, r, http.StatusServiceUnavailable, "Service unavailable")
	default:
		logger.Error("request failed", "action", action, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Internal error")
	}
}
