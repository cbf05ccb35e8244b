package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/afrobirthday/storefront/internal/db"
	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/payments"
)

type recordingNotifier struct {
	mu       sync.Mutex
	paid     []*db.Order
	canceled []*db.Order
}

func (n *recordingNotifier) OrderPaid(_ context.Context, order *db.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paid = append(n.paid, order)
}

func (n *recordingNotifier) OrderCanceled(_ context.Context, order *db.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.canceled = append(n.canceled, order)
}

func (n *recordingNotifier) counts() (paid, canceled int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.paid), len(n.canceled)
}

type fakeAdapter struct {
	provider models.PaymentProvider

	mu           sync.Mutex
	opened       []payments.AttemptRequest
	confirmation payments.Confirmation
	confirmErr   error
	refFor       func(req payments.AttemptRequest) string
}

func (a *fakeAdapter) Provider() models.PaymentProvider {
	return a.provider
}

func (a *fakeAdapter) OpenAttempt(_ context.Context, req payments.AttemptRequest) (payments.Attempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opened = append(a.opened, req)

	ref := string(a.provider) + "-" + req.OrderID.String()
	if a.refFor != nil {
		ref = a.refFor(req)
	}
	if a.provider == models.ProviderPayPal {
		return payments.Attempt{AttemptRef: ref, RedirectURL: "https://paypal.example/approve/" + ref}, nil
	}
	return payments.Attempt{AttemptRef: ref, ClientSecret: ref + "_secret"}, nil
}

func (a *fakeAdapter) Confirm(_ context.Context, attemptRef string) (payments.Confirmation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.confirmErr != nil {
		return payments.Confirmation{}, a.confirmErr
	}
	c := a.confirmation
	c.AttemptRef = attemptRef
	return c, nil
}

func (a *fakeAdapter) lastOpened(t *testing.T) payments.AttemptRequest {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.opened) == 0 {
		t.Fatal("expected an attempt to be opened")
	}
	return a.opened[len(a.opened)-1]
}

func (a *fakeAdapter) openedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.opened)
}

// seedOrder stores a pending order with an attached attempt.
func seedOrder(t *testing.T, store *db.MemoryOrderStore, provider models.PaymentProvider, attemptRef string, totalCents int64) *db.Order {
	t.Helper()
	ctx := context.Background()

	order, err := store.Create(ctx, &db.Order{
		ID:             uuid.New(),
		Email:          "buyer@example.com",
		MusicOption:    models.MusicDefault,
		DeliveryMethod: models.DeliveryStandard,
		PhotoURL:       "https://blob.example/photo.jpg",
		TotalCents:     totalCents,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := store.AttachProviderAttempt(ctx, order.ID, provider, attemptRef); err != nil {
		t.Fatalf("attach attempt: %v", err)
	}
	return order
}
