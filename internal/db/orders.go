package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrobirthday/storefront/internal/models"
)

const orderColumns = `id, created_at, status, order_status, email, message, gift_note,
	music_option, music_link, music_file_url, delivery_method, photo_url, total_cents,
	payment_provider, provider_attempt_ref, provider_capture_ref, notes, cost_cents,
	paid_at, canceled_at`

const uniqueViolation = "23505"

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a pending order. A repeated id is not an error: the stored
// order is returned untouched, total included.
func (s *OrderStore) Create(ctx context.Context, order *Order) (*Order, error) {
	if order == nil {
		return nil, fmt.Errorf("order is required")
	}

	query := `
		INSERT INTO orders (
			id, status, order_status, email, message, gift_note, music_option,
			music_link, music_file_url, delivery_method, photo_url, total_cents
		) VALUES ($1, 'pending', 'pending', $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		order.ID,
		order.Email,
		order.Message,
		nullText(order.GiftNote),
		string(order.MusicOption),
		nullText(order.MusicLink),
		nullText(order.MusicFileURL),
		string(order.DeliveryMethod),
		order.PhotoURL,
		order.TotalCents,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	return s.GetByID(ctx, order.ID)
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

func (s *OrderStore) GetByAttemptRef(ctx context.Context, provider models.PaymentProvider, attemptRef string) (*Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_provider = $1 AND provider_attempt_ref = $2`,
		string(provider), attemptRef,
	)
	return scanOrder(row)
}

func (s *OrderStore) List(ctx context.Context, limit int) ([]*Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// AttachProviderAttempt records the provider's attempt ref on a pending order.
// Re-attaching the exact same ref is accepted so an intake retry can finish.
func (s *OrderStore) AttachProviderAttempt(ctx context.Context, orderID uuid.UUID, provider models.PaymentProvider, attemptRef string) error {
	query := `
		UPDATE orders
		SET payment_provider = $2, provider_attempt_ref = $3
		WHERE id = $1 AND status = 'pending' AND provider_attempt_ref IS NULL
	`
	cmdTag, err := s.pool.Exec(ctx, query, orderID, string(provider), attemptRef)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: attempt ref belongs to another order", ErrAttemptConflict)
		}
		return err
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var (
		currentProvider pgtype.Text
		currentRef      pgtype.Text
	)
	err = s.pool.QueryRow(ctx,
		`SELECT payment_provider, provider_attempt_ref FROM orders WHERE id = $1`, orderID,
	).Scan(&currentProvider, &currentRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if currentProvider.String == string(provider) && currentRef.String == attemptRef {
		return nil
	}
	return ErrAttemptConflict
}

// MarkPaid moves a pending order to paid in one conditional update.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, captureRef string) (TransitionResult, error) {
	query := `
		UPDATE orders
		SET status = 'paid', provider_capture_ref = NULLIF($2, ''), paid_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	cmdTag, err := s.pool.Exec(ctx, query, orderID, captureRef)
	if err != nil {
		return 0, err
	}
	if cmdTag.RowsAffected() == 1 {
		return TransitionApplied, nil
	}
	return s.classifyMissedTransition(ctx, orderID, StatusPaid)
}

// MarkCanceled moves a pending order to canceled in one conditional update.
func (s *OrderStore) MarkCanceled(ctx context.Context, orderID uuid.UUID) (TransitionResult, error) {
	query := `
		UPDATE orders
		SET status = 'canceled', canceled_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	cmdTag, err := s.pool.Exec(ctx, query, orderID)
	if err != nil {
		return 0, err
	}
	if cmdTag.RowsAffected() == 1 {
		return TransitionApplied, nil
	}
	return s.classifyMissedTransition(ctx, orderID, StatusCanceled)
}

// classifyMissedTransition explains why a conditional update matched no row.
// It reads only; the decision to transition was already made atomically.
func (s *OrderStore) classifyMissedTransition(ctx context.Context, orderID uuid.UUID, target PaymentStatus) (TransitionResult, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrOrderNotFound
	}
	if err != nil {
		return 0, err
	}
	return classifyTerminal(PaymentStatus(status), target)
}

func (s *OrderStore) UpdateBackOffice(ctx context.Context, orderID uuid.UUID, update BackOfficeUpdate) (*Order, error) {
	orderStatus := pgtype.Text{}
	if update.OrderStatus != nil {
		orderStatus = pgtype.Text{String: string(*update.OrderStatus), Valid: true}
	}
	notes := pgtype.Text{}
	if update.Notes != nil {
		notes = pgtype.Text{String: *update.Notes, Valid: true}
	}
	cost := pgtype.Int8{}
	if update.CostCents != nil {
		cost = pgtype.Int8{Int64: *update.CostCents, Valid: true}
	}

	query := `
		UPDATE orders
		SET order_status = COALESCE($2, order_status),
		    notes = COALESCE($3, notes),
		    cost_cents = COALESCE($4, cost_cents)
		WHERE id = $1
	`
	cmdTag, err := s.pool.Exec(ctx, query, orderID, orderStatus, notes, cost)
	if err != nil {
		return nil, err
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, ErrOrderNotFound
	}
	return s.GetByID(ctx, orderID)
}

func (s *OrderStore) Delete(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func classifyTerminal(current, target PaymentStatus) (TransitionResult, error) {
	switch {
	case current == target:
		return TransitionAlreadyApplied, nil
	case current.IsTerminal():
		return 0, fmt.Errorf("%w: order is %s, wanted %s", ErrTerminalConflict, current, target)
	default:
		return 0, fmt.Errorf("order in unexpected status %q", current)
	}
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		order          Order
		status         string
		orderStatus    string
		giftNote       pgtype.Text
		musicOption    string
		musicLink      pgtype.Text
		musicFileURL   pgtype.Text
		deliveryMethod string
		provider       pgtype.Text
		attemptRef     pgtype.Text
		captureRef     pgtype.Text
		notes          pgtype.Text
		createdAt      pgtype.Timestamptz
		paidAt         pgtype.Timestamptz
		canceledAt     pgtype.Timestamptz
	)

	err := row.Scan(
		&order.ID,
		&createdAt,
		&status,
		&orderStatus,
		&order.Email,
		&order.Message,
		&giftNote,
		&musicOption,
		&musicLink,
		&musicFileURL,
		&deliveryMethod,
		&order.PhotoURL,
		&order.TotalCents,
		&provider,
		&attemptRef,
		&captureRef,
		&notes,
		&order.CostCents,
		&paidAt,
		&canceledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	order.Status = PaymentStatus(status)
	order.OrderStatus = FulfillmentStatus(orderStatus)
	order.MusicOption = models.MusicOption(musicOption)
	order.DeliveryMethod = models.DeliveryMethod(deliveryMethod)
	order.GiftNote = giftNote.String
	order.MusicLink = musicLink.String
	order.MusicFileURL = musicFileURL.String
	order.PaymentProvider = models.PaymentProvider(provider.String)
	order.ProviderAttemptRef = attemptRef.String
	order.ProviderCaptureRef = captureRef.String
	order.Notes = notes.String
	order.CreatedAt = createdAt.Time
	if paidAt.Valid {
		order.PaidAt = paidAt.Time
	}
	if canceledAt.Valid {
		order.CanceledAt = canceledAt.Time
	}

	return &order, nil
}

func nullText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}
