package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrobirthday/storefront/internal/crypto"
	"github.com/afrobirthday/storefront/internal/pricing"
)

const (
	keyStripeSecret      = "stripe_secret_key"
	keyStripePublishable = "stripe_publishable_key"
)

var ErrSealerUnavailable = errors.New("encryption key is not configured")

// StripeSettings are the Stripe keys staff saved from the back office.
type StripeSettings struct {
	SecretKey      string
	PublishableKey string
}

// keyValues is the raw storage under both settings stores.
type keyValues interface {
	getValues(ctx context.Context, keys ...string) (map[string]string, error)
	setValues(ctx context.Context, values map[string]string) error
}

type SettingsStore struct {
	pool   *pgxpool.Pool
	sealer crypto.Sealer
}

// NewSettingsStore returns a store backed by the settings table. sealer may be
// nil, in which case Stripe secret keys cannot be saved.
func NewSettingsStore(pool *pgxpool.Pool, sealer crypto.Sealer) *SettingsStore {
	return &SettingsStore{pool: pool, sealer: sealer}
}

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	return s.setValues(ctx, map[string]string{key: value})
}

func (s *SettingsStore) getValues(ctx context.Context, keys ...string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

// setValues upserts every key in one transaction so a price update is never
// half applied.
func (s *SettingsStore) setValues(ctx context.Context, values map[string]string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for key, value := range values {
		_, err := tx.Exec(ctx, `
			INSERT INTO settings (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to write setting %s: %w", key, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *SettingsStore) PricingSettings(ctx context.Context) (pricing.Settings, error) {
	return readPricing(ctx, s)
}

func (s *SettingsStore) UpdatePricingSettings(ctx context.Context, settings pricing.Settings) error {
	return writePricing(ctx, s, settings)
}

func (s *SettingsStore) StripeSettings(ctx context.Context) (StripeSettings, error) {
	return readStripe(ctx, s, s.sealer)
}

func (s *SettingsStore) UpdateStripeSettings(ctx context.Context, settings StripeSettings) error {
	return writeStripe(ctx, s, s.sealer, settings)
}

// readPricing falls back to the default for each key that is missing or does
// not parse. A storage failure is returned so order intake can abort.
func readPricing(ctx context.Context, kv keyValues) (pricing.Settings, error) {
	values, err := kv.getValues(ctx, pricing.KeyBase, pricing.KeyCustomSong, pricing.KeyExpressDelivery)
	if err != nil {
		return pricing.Settings{}, err
	}

	settings := pricing.DefaultSettings
	if cents, ok := parseStoredPrice(values, pricing.KeyBase); ok {
		settings.BaseCents = cents
	}
	if cents, ok := parseStoredPrice(values, pricing.KeyCustomSong); ok {
		settings.CustomSongCents = cents
	}
	if cents, ok := parseStoredPrice(values, pricing.KeyExpressDelivery); ok {
		settings.ExpressDeliveryCents = cents
	}
	return settings, nil
}

func parseStoredPrice(values map[string]string, key string) (int64, bool) {
	raw, ok := values[key]
	if !ok {
		return 0, false
	}
	cents, err := pricing.ParseCents(raw)
	if err != nil {
		return 0, false
	}
	return cents, true
}

func writePricing(ctx context.Context, kv keyValues, settings pricing.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return kv.setValues(ctx, map[string]string{
		pricing.KeyBase:            pricing.FormatCents(settings.BaseCents),
		pricing.KeyCustomSong:      pricing.FormatCents(settings.CustomSongCents),
		pricing.KeyExpressDelivery: pricing.FormatCents(settings.ExpressDeliveryCents),
	})
}

func readStripe(ctx context.Context, kv keyValues, sealer crypto.Sealer) (StripeSettings, error) {
	values, err := kv.getValues(ctx, keyStripeSecret, keyStripePublishable)
	if err != nil {
		return StripeSettings{}, err
	}

	settings := StripeSettings{PublishableKey: values[keyStripePublishable]}
	secret := values[keyStripeSecret]
	if !crypto.IsSealed(secret) {
		settings.SecretKey = secret
		return settings, nil
	}
	if sealer == nil {
		return StripeSettings{}, ErrSealerUnavailable
	}
	settings.SecretKey, err = sealer.Open(secret)
	if err != nil {
		return StripeSettings{}, fmt.Errorf("failed to open stripe secret key: %w", err)
	}
	return settings, nil
}

func writeStripe(ctx context.Context, kv keyValues, sealer crypto.Sealer, settings StripeSettings) error {
	secret := ""
	if settings.SecretKey != "" {
		if sealer == nil {
			return ErrSealerUnavailable
		}
		sealed, err := sealer.Seal(settings.SecretKey)
		if err != nil {
			return err
		}
		secret = sealed
	}
	return kv.setValues(ctx, map[string]string{
		keyStripeSecret:      secret,
		keyStripePublishable: settings.PublishableKey,
	})
}
