package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/afrobirthday/storefront/internal/logging"
	"github.com/afrobirthday/storefront/internal/observability"
	"github.com/afrobirthday/storefront/internal/services"
)

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type adminLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Success   bool      `json:"success"`
}

func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err, "admin_login")
		return
	}

	token, expiresAt, err := h.authService.Login(req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrAuthInvalidCredentials):
		h.writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
		return
	case errors.Is(err, services.ErrAuthUnavailable):
		h.writeError(w, r, http.StatusServiceUnavailable, "Admin credentials not configured")
		return
	default:
		h.loggerFromContext(r.Context()).Error("admin login failed", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Login failed")
		return
	}

	h.writeJSON(w, r, http.StatusOK, adminLoginResponse{Token: token, ExpiresAt: expiresAt, Success: true})
}

// RequireAdmin rejects requests without a valid admin bearer token.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			h.writeError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims, err := h.authService.VerifyToken(token)
		if err != nil {
			if errors.Is(err, services.ErrAuthUnavailable) {
				h.writeError(w, r, http.StatusServiceUnavailable, "Admin access not configured")
				return
			}
			h.loggerFromContext(r.Context()).Warn("rejected admin token", "error", err)
			h.writeError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := logging.With(r.Context(), h.logger, "admin", claims.Subject)
		observability.MeterFromContext(ctx).SetAttributes(attribute.String("user.username", claims.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func orderIDFromPath(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	return id, err == nil
}

func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	orders, err := h.adminService.ListOrders(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err, "admin_list_orders")
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handlers) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := h.adminService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, r, err, "admin_get_order")
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

type adminUpdateOrderRequest struct {
	OrderStatus *string          `json:"orderStatus"`
	Notes       *string          `json:"notes"`
	Cost        *decimal.Decimal `json:"cost"`
}

// AdminUpdateOrder edits back-office fields only. Payment status, attempt and
// total are not accepted here.
func (h *Handlers) AdminUpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req adminUpdateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err, "admin_update_order")
		return
	}

	order, err := h.adminService.UpdateOrder(r.Context(), orderID, services.UpdateOrderInput{
		OrderStatus: req.OrderStatus,
		Notes:       req.Notes,
		Cost:        req.Cost,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "admin_update_order")
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

func (h *Handlers) AdminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "Invalid order ID")
		return
	}

	if err := h.adminService.DeleteOrder(r.Context(), orderID); err != nil {
		h.writeServiceError(w, r, err, "admin_delete_order")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminRefreshOrder asks the provider for the current state of a pending
// order's attempt and reconciles it.
func (h *Handlers) AdminRefreshOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "Invalid order ID")
		return
	}

	result, err := h.paymentService.RefreshOrder(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, r, err, "admin_refresh_order")
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"orderId": orderID.String(),
		"status":  string(result.Status),
		"result":  result.Result.String(),
	})
}

func (h *Handlers) AdminPricing(w http.ResponseWriter, r *http.Request) {
	settings, err := h.adminService.Pricing(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "admin_pricing")
		return
	}
	h.writeJSON(w, r, http.StatusOK, newPricingResponse(settings))
}

type adminPricingRequest struct {
	Base            *decimal.Decimal `json:"base"`
	CustomSong      *decimal.Decimal `json:"customSong"`
	ExpressDelivery *decimal.Decimal `json:"expressDelivery"`
}

func (h *Handlers) AdminUpdatePricing(w http.ResponseWriter, r *http.Request) {
	var req adminPricingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err, "admin_update_pricing")
		return
	}

	settings, err := h.adminService.UpdatePricing(r.Context(), services.PricingInput{
		Base:            req.Base,
		CustomSong:      req.CustomSong,
		ExpressDelivery: req.ExpressDelivery,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "admin_update_pricing")
		return
	}
	h.writeJSON(w, r, http.StatusOK, newPricingResponse(settings))
}

type stripeSettingsResponse struct {
	SecretKeyMasked string `json:"secretKeyMasked"`
	HasSecretKey    bool   `json:"hasSecretKey"`
	PublishableKey  string `json:"publishableKey"`
}

func (h *Handlers) AdminStripeSettings(w http.ResponseWriter, r *http.Request) {
	view, err := h.adminService.StripeSettings(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "admin_stripe_settings")
		return
	}
	h.writeJSON(w, r, http.StatusOK, stripeSettingsResponse{
		SecretKeyMasked: view.SecretKeyMasked,
		HasSecretKey:    view.HasSecretKey,
		PublishableKey:  view.PublishableKey,
	})
}

type adminStripeSettingsRequest struct {
	SecretKey      string `json:"secretKey"`
	PublishableKey string `json:"publishableKey"`
}

func (h *Handlers) AdminUpdateStripeSettings(w http.ResponseWriter, r *http.Request) {
	var req adminStripeSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err, "admin_update_stripe_settings")
		return
	}

	if err := h.adminService.UpdateStripeSettings(r.Context(), req.SecretKey, req.PublishableKey); err != nil {
		h.writeServiceError(w, r, err, "admin_update_stripe_settings")
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}
