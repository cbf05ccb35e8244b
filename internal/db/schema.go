package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id uuid PRIMARY KEY,
		created_at timestamptz NOT NULL DEFAULT now(),
		status text NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid', 'canceled')),
		order_status text NOT NULL DEFAULT 'pending',
		email text NOT NULL,
		message text NOT NULL,
		gift_note text,
		music_option text NOT NULL,
		music_link text,
		music_file_url text,
		delivery_method text NOT NULL,
		photo_url text NOT NULL,
		total_cents bigint NOT NULL CHECK (total_cents >= 0),
		payment_provider text,
		provider_attempt_ref text,
		provider_capture_ref text,
		notes text,
		cost_cents bigint NOT NULL DEFAULT 0,
		paid_at timestamptz,
		canceled_at timestamptz
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_provider_attempt_ref_idx
		ON orders (payment_provider, provider_attempt_ref)
		WHERE provider_attempt_ref IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS orders_created_at_idx ON orders (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key text PRIMARY KEY,
		value text NOT NULL
	)`,
}

// EnsureSchema creates the tables the service needs. Every statement is
// idempotent so it runs on each boot.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
