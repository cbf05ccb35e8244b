// Package stripe opens and confirms card payments through Stripe.
package stripe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/payments"
)

const (
	metadataOrderID = "orderId"
	currencyUSD     = "usd"
)

// Mode selects how the buyer pays: an embedded PaymentIntent form or a hosted
// Checkout Session redirect.
type Mode string

const (
	ModePaymentIntent   Mode = "payment_intent"
	ModeCheckoutSession Mode = "checkout_session"
)

type paymentIntentAPI interface {
	Create(ctx context.Context, params *stripeapi.PaymentIntentCreateParams) (*stripeapi.PaymentIntent, error)
	Retrieve(ctx context.Context, id string, params *stripeapi.PaymentIntentRetrieveParams) (*stripeapi.PaymentIntent, error)
}

type checkoutSessionAPI interface {
	Create(ctx context.Context, params *stripeapi.CheckoutSessionCreateParams) (*stripeapi.CheckoutSession, error)
	Retrieve(ctx context.Context, id string, params *stripeapi.CheckoutSessionRetrieveParams) (*stripeapi.CheckoutSession, error)
}

type Adapter struct {
	intents  paymentIntentAPI
	sessions checkoutSessionAPI
	mode     Mode
}

// NewAdapter builds an adapter on the Stripe API. httpClient may be nil.
func NewAdapter(secretKey string, mode Mode, httpClient *http.Client) *Adapter {
	var opts []stripeapi.ClientOption
	if httpClient != nil {
		opts = append(opts, stripeapi.WithBackends(stripeapi.NewBackendsWithConfig(&stripeapi.BackendConfig{
			HTTPClient: httpClient,
		})))
	}
	client := stripeapi.NewClient(secretKey, opts...)
	return newAdapter(client.V1PaymentIntents, client.V1CheckoutSessions, mode)
}

func newAdapter(intents paymentIntentAPI, sessions checkoutSessionAPI, mode Mode) *Adapter {
	if mode == "" {
		mode = ModePaymentIntent
	}
	return &Adapter{intents: intents, sessions: sessions, mode: mode}
}

func (a *Adapter) Provider() models.PaymentProvider {
	return models.ProviderStripe
}

func (a *Adapter) Mode() Mode {
	return a.mode
}

func (a *Adapter) OpenAttempt(ctx context.Context, req payments.AttemptRequest) (payments.Attempt, error) {
	if req.AmountCents <= 0 {
		return payments.Attempt{}, fmt.Errorf("amount must be positive, got %d", req.AmountCents)
	}
	if a.mode == ModeCheckoutSession {
		return a.openCheckoutSession(ctx, req)
	}
	return a.openPaymentIntent(ctx, req)
}

func (a *Adapter) openPaymentIntent(ctx context.Context, req payments.AttemptRequest) (payments.Attempt, error) {
	params := &stripeapi.PaymentIntentCreateParams{
		Amount:   stripeapi.Int64(req.AmountCents),
		Currency: stripeapi.String(currencyUSD),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
		Metadata: map[string]string{metadataOrderID: req.OrderID.String()},
	}
	if req.Description != "" {
		params.Description = stripeapi.String(req.Description)
	}
	if req.Email != "" {
		params.ReceiptEmail = stripeapi.String(req.Email)
	}
	params.SetIdempotencyKey("order-" + req.OrderID.String() + "-intent")

	intent, err := a.intents.Create(ctx, params)
	if err != nil {
		return payments.Attempt{}, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return payments.Attempt{
		AttemptRef:   intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (a *Adapter) openCheckoutSession(ctx context.Context, req payments.AttemptRequest) (payments.Attempt, error) {
	if req.ReturnURL == "" || req.CancelURL == "" {
		return payments.Attempt{}, fmt.Errorf("return and cancel URLs are required for checkout sessions")
	}

	productName := req.Description
	if productName == "" {
		productName = "Birthday video"
	}

	params := &stripeapi.CheckoutSessionCreateParams{
		Mode:       stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL: stripeapi.String(req.ReturnURL),
		CancelURL:  stripeapi.String(req.CancelURL),
		LineItems: []*stripeapi.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripeapi.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripeapi.String(currencyUSD),
					ProductData: &stripeapi.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripeapi.String(productName),
					},
					UnitAmount: stripeapi.Int64(req.AmountCents),
				},
				Quantity: stripeapi.Int64(1),
			},
		},
		ClientReferenceID: stripeapi.String(req.OrderID.String()),
		Metadata:          map[string]string{metadataOrderID: req.OrderID.String()},
		PaymentIntentData: &stripeapi.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: map[string]string{metadataOrderID: req.OrderID.String()},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripeapi.String(req.Email)
	}
	params.SetIdempotencyKey("order-" + req.OrderID.String() + "-session")

	session, err := a.sessions.Create(ctx, params)
	if err != nil {
		return payments.Attempt{}, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return payments.Attempt{
		AttemptRef:  session.ID,
		RedirectURL: session.URL,
	}, nil
}

// Confirm polls Stripe for the attempt's current state.
func (a *Adapter) Confirm(ctx context.Context, attemptRef string) (payments.Confirmation, error) {
	switch {
	case strings.HasPrefix(attemptRef, "cs_"):
		params := &stripeapi.CheckoutSessionRetrieveParams{}
		params.AddExpand("payment_intent")
		session, err := a.sessions.Retrieve(ctx, attemptRef, params)
		if err != nil {
			return payments.Confirmation{}, fmt.Errorf("failed to retrieve checkout session: %w", err)
		}
		return confirmationFromSession(session), nil
	case strings.HasPrefix(attemptRef, "pi_"):
		intent, err := a.intents.Retrieve(ctx, attemptRef, nil)
		if err != nil {
			return payments.Confirmation{}, fmt.Errorf("failed to retrieve payment intent: %w", err)
		}
		return confirmationFromIntent(intent), nil
	default:
		return payments.Confirmation{}, fmt.Errorf("unrecognised stripe attempt ref %q", attemptRef)
	}
}
