// Package payments defines the provider-neutral contract the checkout flow and
// the reconciler share. Provider implementations live in sub-packages.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/afrobirthday/storefront/internal/models"
)

// Outcome is a provider result normalised to what the order lifecycle needs.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

var ErrProviderUnavailable = errors.New("payment provider not configured")

// AttemptRequest is everything a provider needs to open a payment attempt.
type AttemptRequest struct {
	OrderID     uuid.UUID
	AmountCents int64
	Email       string
	Description string
	// ReturnURL and CancelURL are used by redirect providers.
	ReturnURL string
	CancelURL string
}

// Attempt is the handle returned to the buyer. Exactly one of ClientSecret
// and RedirectURL is set.
type Attempt struct {
	AttemptRef   string
	ClientSecret string
	RedirectURL  string
}

// Confirmation is a provider's answer about one attempt.
type Confirmation struct {
	AttemptRef string
	Outcome    Outcome
	CaptureRef string
	// OrderID is the order id the provider echoed back in its metadata, if any.
	OrderID string
}

type Adapter interface {
	Provider() models.PaymentProvider
	OpenAttempt(ctx context.Context, req AttemptRequest) (Attempt, error)
	Confirm(ctx context.Context, attemptRef string) (Confirmation, error)
}

// Registry picks the adapter for an order's provider.
type Registry struct {
	adapters map[models.PaymentProvider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.PaymentProvider]Adapter, len(adapters))}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		r.adapters[adapter.Provider()] = adapter
	}
	return r
}

func (r *Registry) Get(provider models.PaymentProvider) (Adapter, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, provider)
	}
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, provider)
	}
	return adapter, nil
}

func (r *Registry) Providers() []models.PaymentProvider {
	if r == nil {
		return nil
	}
	providers := make([]models.PaymentProvider, 0, len(r.adapters))
	for _, p := range []models.PaymentProvider{models.ProviderStripe, models.ProviderPayPal} {
		if _, ok := r.adapters[p]; ok {
			providers = append(providers, p)
		}
	}
	return providers
}
