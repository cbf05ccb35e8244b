package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/pricing"
	"github.com/afrobirthday/storefront/internal/services"
)

type pricingResponse struct {
	Base            json.Number `json:"base"`
	CustomSong      json.Number `json:"customSong"`
	ExpressDelivery json.Number `json:"expressDelivery"`
}

func newPricingResponse(settings pricing.Settings) pricingResponse {
	return pricingResponse{
		Base:            json.Number(pricing.FormatCents(settings.BaseCents)),
		CustomSong:      json.Number(pricing.FormatCents(settings.CustomSongCents)),
		ExpressDelivery: json.Number(pricing.FormatCents(settings.ExpressDeliveryCents)),
	}
}

// Pricing serves the current price snapshot for display.
func (h *Handlers) Pricing(w http.ResponseWriter, r *http.Request) {
	settings, err := h.paymentService.CurrentPricing(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "pricing")
		return
	}

	h.writeJSON(w, r, http.StatusOK, newPricingResponse(settings))
}

type checkoutRequest struct {
	OrderID        string `json:"orderId"`
	Provider       string `json:"provider"`
	Email          string `json:"email"`
	Message        string `json:"message"`
	GiftNote       string `json:"giftNote"`
	MusicOption    string `json:"musicOption"`
	MusicLink      string `json:"musicLink"`
	MusicFileURL   string `json:"musicFileUrl"`
	DeliveryMethod string `json:"deliveryMethod"`
	PhotoURL       string `json:"photoUrl"`
	// TotalPrice is what the page showed. It is logged, never charged.
	TotalPrice json.Number `json:"totalPrice"`
}

type checkoutResponse struct {
	OrderID        string      `json:"orderId"`
	Provider       string      `json:"provider"`
	AttemptRef     string      `json:"attemptRef"`
	ClientSecret   string      `json:"clientSecret,omitempty"`
	ApproveURL     string      `json:"approveUrl,omitempty"`
	PublishableKey string      `json:"publishableKey,omitempty"`
	Total          json.Number `json:"total"`
}

// Checkout records an order and opens a payment attempt with the chosen
// provider. The amount is always computed server-side.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err, "checkout")
		return
	}

	orderID, err := uuid.Parse(strings.TrimSpace(req.OrderID))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Missing orderId")
		return
	}

	provider := models.PaymentProvider(strings.ToLower(strings.TrimSpace(req.Provider)))
	if provider == "" {
		provider = models.ProviderStripe
	}

	result, err := h.paymentService.Checkout(r.Context(), services.CheckoutInput{
		OrderID:        orderID,
		Provider:       provider,
		Email:          req.Email,
		Message:        req.Message,
		GiftNote:       req.GiftNote,
		MusicOption:    models.MusicOption(req.MusicOption),
		MusicLink:      req.MusicLink,
		MusicFileURL:   req.MusicFileURL,
		DeliveryMethod: models.DeliveryMethod(req.DeliveryMethod),
		PhotoURL:       req.PhotoURL,
		ClientTotal:    req.TotalPrice.String(),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "checkout")
		return
	}

	resp := checkoutResponse{
		OrderID:      result.OrderID.String(),
		Provider:     string(result.Provider),
		AttemptRef:   result.AttemptRef,
		ClientSecret: result.ClientSecret,
		ApproveURL:   result.ApproveURL,
		Total:        json.Number(pricing.FormatCents(result.TotalCents)),
	}
	if result.Provider == models.ProviderStripe && result.ClientSecret != "" {
		resp.PublishableKey = h.config.StripePublishableKey
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

type stripeConfirmRequest struct {
	OrderID         string `json:"orderId"`
	PaymentIntentID string `json:"paymentIntentId"`
	SessionID       string `json:"sessionId"`
}

type confirmResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	// AlreadyProcessed is true when the order had settled before this call.
	AlreadyProcessed bool `json:"alreadyProcessed"`
}

// StripeConfirm lets the buyer's page poll a Stripe attempt after the client
// side confirmation finished.
func (h *Handlers) StripeConfirm(w http.ResponseWriter, r *http.Request) {
	var req stripeConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err, "stripe_confirm")
		return
	}

	orderID, err := uuid.Parse(strings.TrimSpace(req.OrderID))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Missing orderId")
		return
	}
	attemptRef := strings.TrimSpace(req.PaymentIntentID)
	if attemptRef == "" {
		attemptRef = strings.TrimSpace(req.SessionID)
	}
	if attemptRef == "" {
		h.writeError(w, r, http.StatusBadRequest, "Missing paymentIntentId")
		return
	}

	result, err := h.paymentService.ConfirmReturn(r.Context(), models.ProviderStripe, orderID, attemptRef)
	if err != nil {
		h.writeServiceError(w, r, err, "stripe_confirm")
		return
	}

	h.writeJSON(w, r, http.StatusOK, confirmResponse{
		OrderID:          orderID.String(),
		Status:           string(result.Status),
		AlreadyProcessed: result.Result == services.ReconcileReplayed,
	})
}

// PayPalReturn captures an approved PayPal order when the buyer comes back
// from PayPal, then sends them to the success or failure page.
func (h *Handlers) PayPalReturn(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFromContext(r.Context())
	query := r.URL.Query()
	rawOrderID := strings.TrimSpace(query.Get("orderId"))
	token := strings.TrimSpace(query.Get("token"))

	orderID, err := uuid.Parse(rawOrderID)
	if err != nil || token == "" {
		logger.Warn("paypal return missing parameters", "order_id", rawOrderID, "has_token", token != "")
		http.Redirect(w, r, "/checkout/failed", http.StatusSeeOther)
		return
	}

	result, err := h.paymentService.ConfirmReturn(r.Context(), models.ProviderPayPal, orderID, token)
	if err != nil {
		logger.Warn("paypal return could not be confirmed", "order_id", orderID, "error", err)
		http.Redirect(w, r, orderPage("/checkout/failed", orderID), http.StatusSeeOther)
		return
	}

	switch result.Status {
	case models.StatusCanceled:
		http.Redirect(w, r, orderPage("/checkout/failed", orderID), http.StatusSeeOther)
	default:
		// Pending captures settle later through the provider; the success
		// page shows the stored status.
		http.Redirect(w, r, orderPage("/success", orderID), http.StatusSeeOther)
	}
}

func orderPage(path string, orderID uuid.UUID) string {
	return path + "?" + url.Values{"orderId": {orderID.String()}}.Encode()
}
