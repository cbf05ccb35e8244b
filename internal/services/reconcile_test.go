package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/afrobirthday/storefront/internal/db"
	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/payments"
)

func newTestReconciler() (*Reconciler, *db.MemoryOrderStore, *recordingNotifier) {
	store := db.NewMemoryOrderStore()
	notifier := &recordingNotifier{}
	return NewReconciler(store, notifier, nil), store, notifier
}

func TestReconcile_SucceededTwice(t *testing.T) {
	t.Parallel()

	reconciler, store, notifier := newTestReconciler()
	ctx := context.Background()
	order := seedOrder(t, store, models.ProviderStripe, "a1", 1999)

	confirmation := payments.Confirmation{AttemptRef: "a1", Outcome: payments.OutcomeSucceeded, CaptureRef: "c1"}

	first, err := reconciler.Reconcile(ctx, models.ProviderStripe, confirmation)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if first != ReconcileApplied {
		t.Fatalf("expected applied, got %s", first)
	}

	stored, err := store.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Status != models.StatusPaid || stored.ProviderCaptureRef != "c1" {
		t.Fatalf("unexpected order after first call: status=%s capture=%q", stored.Status, stored.ProviderCaptureRef)
	}

	second, err := reconciler.Reconcile(ctx, models.ProviderStripe, confirmation)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if second != ReconcileReplayed {
		t.Fatalf("expected replayed, got %s", second)
	}

	paid, canceled := notifier.counts()
	if paid != 1 || canceled != 0 {
		t.Fatalf("expected one paid notification, got paid=%d canceled=%d", paid, canceled)
	}
	if notifier.paid[0].ProviderCaptureRef != "c1" {
		t.Fatalf("notification should see the settled order, got capture %q", notifier.paid[0].ProviderCaptureRef)
	}
}

func TestReconcile_ManyDeliveriesNotifyOnce(t *testing.T) {
	t.Parallel()

	reconciler, store, notifier := newTestReconciler()
	seedOrder(t, store, models.ProviderPayPal, "PAYPAL-1", 2798)

	const deliveries = 25
	var wg sync.WaitGroup
	results := make(chan ReconcileResult, deliveries)
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := reconciler.Reconcile(context.Background(), models.ProviderPayPal, payments.Confirmation{
				AttemptRef: "PAYPAL-1",
				Outcome:    payments.OutcomeSucceeded,
				CaptureRef: "CAP-1",
			})
			if err != nil {
				t.Errorf("reconcile: %v", err)
				return
			}
			results <- result
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for result := range results {
		if result == ReconcileApplied {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied result, got %d", applied)
	}
	if paid, _ := notifier.counts(); paid != 1 {
		t.Fatalf("expected one notification, got %d", paid)
	}
}

func TestReconcile_RaceSettlesOnce(t *testing.T) {
	t.Parallel()

	for range 20 {
		reconciler, store, notifier := newTestReconciler()
		order := seedOrder(t, store, models.ProviderStripe, "pi_race", 1999)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for _, outcome := range []payments.Outcome{payments.OutcomeSucceeded, payments.OutcomeFailed} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := reconciler.Reconcile(context.Background(), models.ProviderStripe, payments.Confirmation{
					AttemptRef: "pi_race",
					Outcome:    outcome,
					CaptureRef: "ch_race",
				})
				if err != nil && !errors.Is(err, db.ErrTerminalConflict) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		stored, err := store.GetByID(context.Background(), order.ID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if !stored.Status.IsTerminal() {
			t.Fatalf("order did not settle: %s", stored.Status)
		}

		paid, canceled := notifier.counts()
		if paid+canceled != 1 {
			t.Fatalf("expected exactly one notification, got paid=%d canceled=%d", paid, canceled)
		}
		if (stored.Status == models.StatusPaid) != (paid == 1) {
			t.Fatalf("notification does not match final state %s", stored.Status)
		}
	}
}

func TestReconcile_TerminalStateProtected(t *testing.T) {
	t.Parallel()

	reconciler, store, notifier := newTestReconciler()
	ctx := context.Background()
	order := seedOrder(t, store, models.ProviderStripe, "cs_expired", 1999)

	result, err := reconciler.Reconcile(ctx, models.ProviderStripe, payments.Confirmation{AttemptRef: "cs_expired", Outcome: payments.OutcomeFailed})
	if err != nil || result != ReconcileApplied {
		t.Fatalf("expected cancel to apply, got %s %v", result, err)
	}

	_, err = reconciler.Reconcile(ctx, models.ProviderStripe, payments.Confirmation{AttemptRef: "cs_expired", Outcome: payments.OutcomeSucceeded, CaptureRef: "pi_late"})
	if !errors.Is(err, db.ErrTerminalConflict) {
		t.Fatalf("expected ErrTerminalConflict, got %v", err)
	}

	stored, _ := store.GetByID(ctx, order.ID)
	if stored.Status != models.StatusCanceled || stored.ProviderCaptureRef != "" {
		t.Fatalf("canceled order was modified: %+v", stored)
	}
	if paid, canceled := notifier.counts(); paid != 0 || canceled != 1 {
		t.Fatalf("unexpected notifications paid=%d canceled=%d", paid, canceled)
	}
}

func TestReconcile_NoCrossTalk(t *testing.T) {
	t.Parallel()

	reconciler, store, notifier := newTestReconciler()
	ctx := context.Background()
	target := seedOrder(t, store, models.ProviderStripe, "pi_a", 1999)
	other := seedOrder(t, store, models.ProviderStripe, "pi_b", 2798)
	paypalOrder := seedOrder(t, store, models.ProviderPayPal, "pi_a", 2798)

	if _, err := reconciler.Reconcile(ctx, models.ProviderStripe, payments.Confirmation{AttemptRef: "pi_a", Outcome: payments.OutcomeSucceeded, CaptureRef: "ch_a"}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	for _, tc := range []struct {
		order *db.Order
		want  models.PaymentStatus
	}{
		{target, models.StatusPaid},
		{other, models.StatusPending},
		{paypalOrder, models.StatusPending},
	} {
		stored, err := store.GetByID(ctx, tc.order.ID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if stored.Status != tc.want {
			t.Fatalf("order %s: expected %s, got %s", tc.order.ID, tc.want, stored.Status)
		}
	}
	if paid, _ := notifier.counts(); paid != 1 {
		t.Fatalf("expected one notification, got %d", paid)
	}
}

func TestReconcile_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		confirmation payments.Confirmation
		wantErr      error
	}{
		{
			name:         "unknown attempt",
			confirmation: payments.Confirmation{AttemptRef: "pi_missing", Outcome: payments.OutcomeSucceeded},
			wantErr:      ErrUnknownAttempt,
		},
		{
			name:         "empty attempt",
			confirmation: payments.Confirmation{Outcome: payments.OutcomeSucceeded},
			wantErr:      ErrUnknownAttempt,
		},
		{
			name:         "metadata names another order",
			confirmation: payments.Confirmation{AttemptRef: "pi_known", Outcome: payments.OutcomeSucceeded, OrderID: "00000000-0000-0000-0000-000000000001"},
			wantErr:      ErrAttemptMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reconciler, store, notifier := newTestReconciler()
			order := seedOrder(t, store, models.ProviderStripe, "pi_known", 1999)

			_, err := reconciler.Reconcile(context.Background(), models.ProviderStripe, tt.confirmation)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			stored, _ := store.GetByID(context.Background(), order.ID)
			if stored.Status != models.StatusPending {
				t.Fatalf("order changed after rejected confirmation: %s", stored.Status)
			}
			if paid, canceled := notifier.counts(); paid+canceled != 0 {
				t.Fatal("rejected confirmation must not notify")
			}
		})
	}
}

func TestReconcile_PendingIsNoop(t *testing.T) {
	t.Parallel()

	reconciler, store, notifier := newTestReconciler()
	order := seedOrder(t, store, models.ProviderPayPal, "PAYPAL-P", 1999)

	result, err := reconciler.Reconcile(context.Background(), models.ProviderPayPal, payments.Confirmation{AttemptRef: "PAYPAL-P", Outcome: payments.OutcomePending})
	if err != nil || result != ReconcilePending {
		t.Fatalf("expected pending, got %s %v", result, err)
	}
	stored, _ := store.GetByID(context.Background(), order.ID)
	if stored.Status != models.StatusPending {
		t.Fatalf("pending confirmation changed order to %s", stored.Status)
	}
	if paid, canceled := notifier.counts(); paid+canceled != 0 {
		t.Fatal("pending confirmation must not notify")
	}
}
