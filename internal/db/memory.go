package db

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afrobirthday/storefront/internal/crypto"
	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/pricing"
)

// MemoryOrderStore keeps orders in process. One mutex guards every read and
// write, which gives the same per-order atomicity as the conditional updates
// in OrderStore.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]Order
	now    func() time.Time
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders: make(map[uuid.UUID]Order),
		now:    time.Now,
	}
}

func (s *MemoryOrderStore) Create(_ context.Context, order *Order) (*Order, error) {
	if order == nil {
		return nil, fmt.Errorf("order is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.orders[order.ID]; ok {
		return &existing, nil
	}

	stored := Order{
		ID:             order.ID,
		Status:         StatusPending,
		OrderStatus:    models.FulfillmentPending,
		Email:          order.Email,
		Message:        order.Message,
		GiftNote:       order.GiftNote,
		MusicOption:    order.MusicOption,
		MusicLink:      order.MusicLink,
		MusicFileURL:   order.MusicFileURL,
		DeliveryMethod: order.DeliveryMethod,
		PhotoURL:       order.PhotoURL,
		TotalCents:     order.TotalCents,
		CreatedAt:      s.now(),
	}
	s.orders[order.ID] = stored
	return &stored, nil
}

func (s *MemoryOrderStore) GetByID(_ context.Context, orderID uuid.UUID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &order, nil
}

func (s *MemoryOrderStore) GetByAttemptRef(_ context.Context, provider models.PaymentProvider, attemptRef string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, order := range s.orders {
		if order.PaymentProvider == provider && order.ProviderAttemptRef == attemptRef && attemptRef != "" {
			return &order, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (s *MemoryOrderStore) List(_ context.Context, limit int) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := slices.SortedFunc(maps.Values(s.orders), func(a, b Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	orders := make([]*Order, 0, len(sorted))
	for i := range sorted {
		orders = append(orders, &sorted[i])
	}
	return orders, nil
}

func (s *MemoryOrderStore) AttachProviderAttempt(_ context.Context, orderID uuid.UUID, provider models.PaymentProvider, attemptRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if order.ProviderAttemptRef != "" {
		if order.PaymentProvider == provider && order.ProviderAttemptRef == attemptRef {
			return nil
		}
		return ErrAttemptConflict
	}
	if order.Status != StatusPending {
		return ErrAttemptConflict
	}
	for id, other := range s.orders {
		if id != orderID && other.PaymentProvider == provider && other.ProviderAttemptRef == attemptRef {
			return fmt.Errorf("%w: attempt ref belongs to another order", ErrAttemptConflict)
		}
	}

	order.PaymentProvider = provider
	order.ProviderAttemptRef = attemptRef
	s.orders[orderID] = order
	return nil
}

func (s *MemoryOrderStore) MarkPaid(_ context.Context, orderID uuid.UUID, captureRef string) (TransitionResult, error) {
	return s.transition(orderID, StatusPaid, func(order *Order) {
		order.ProviderCaptureRef = captureRef
		order.PaidAt = s.now()
	})
}

func (s *MemoryOrderStore) MarkCanceled(_ context.Context, orderID uuid.UUID) (TransitionResult, error) {
	return s.transition(orderID, StatusCanceled, func(order *Order) {
		order.CanceledAt = s.now()
	})
}

func (s *MemoryOrderStore) transition(orderID uuid.UUID, target PaymentStatus, apply func(*Order)) (TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return 0, ErrOrderNotFound
	}
	if order.Status != StatusPending {
		return classifyTerminal(order.Status, target)
	}

	order.Status = target
	apply(&order)
	s.orders[orderID] = order
	return TransitionApplied, nil
}

func (s *MemoryOrderStore) UpdateBackOffice(_ context.Context, orderID uuid.UUID, update BackOfficeUpdate) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if update.OrderStatus != nil {
		order.OrderStatus = *update.OrderStatus
	}
	if update.Notes != nil {
		order.Notes = *update.Notes
	}
	if update.CostCents != nil {
		order.CostCents = *update.CostCents
	}
	s.orders[orderID] = order
	return &order, nil
}

func (s *MemoryOrderStore) Delete(_ context.Context, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return ErrOrderNotFound
	}
	delete(s.orders, orderID)
	return nil
}

// MemorySettingsStore is the in-process counterpart of SettingsStore.
type MemorySettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
	sealer crypto.Sealer
	// Err, when set, is returned by every read. Tests use it to simulate an
	// unreadable configuration.
	Err error
}

func NewMemorySettingsStore(sealer crypto.Sealer) *MemorySettingsStore {
	return &MemorySettingsStore{values: make(map[string]string), sealer: sealer}
}

func (s *MemorySettingsStore) getValues(_ context.Context, keys ...string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Err != nil {
		return nil, s.Err
	}
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := s.values[key]; ok {
			values[key] = value
		}
	}
	return values, nil
}

func (s *MemorySettingsStore) setValues(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	maps.Copy(s.values, values)
	return nil
}

// Raw returns the stored value for key exactly as persisted.
func (s *MemorySettingsStore) Raw(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

func (s *MemorySettingsStore) Set(ctx context.Context, key, value string) error {
	return s.setValues(ctx, map[string]string{key: value})
}

func (s *MemorySettingsStore) PricingSettings(ctx context.Context) (pricing.Settings, error) {
	return readPricing(ctx, s)
}

func (s *MemorySettingsStore) UpdatePricingSettings(ctx context.Context, settings pricing.Settings) error {
	return writePricing(ctx, s, settings)
}

func (s *MemorySettingsStore) StripeSettings(ctx context.Context) (StripeSettings, error) {
	return readStripe(ctx, s, s.sealer)
}

func (s *MemorySettingsStore) UpdateStripeSettings(ctx context.Context, settings StripeSettings) error {
	return writeStripe(ctx, s, s.sealer, settings)
}
