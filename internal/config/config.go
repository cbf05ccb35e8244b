package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	BaseURL     string `env:"BASE_URL,required" validate:"required,url"`

	StripeSecretKey      string `env:"STRIPE_SECRET_KEY"`
	StripePublishableKey string `env:"STRIPE_PUBLISHABLE_KEY"`
	StripeWebhookSecret  string `env:"STRIPE_WEBHOOK_SECRET" validate:"required_with=StripeSecretKey"`
	StripeCheckoutMode   string `env:"STRIPE_CHECKOUT_MODE" envDefault:"payment_intent" validate:"oneof=payment_intent checkout_session"`

	PayPalClientID     string `env:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret string `env:"PAYPAL_CLIENT_SECRET"`
	PayPalEnv          string `env:"PAYPAL_ENV" envDefault:"sandbox" validate:"oneof=sandbox live"`

	EmailProvider string `env:"EMAIL_PROVIDER" validate:"omitempty,oneof=resend postmark"`
	EmailAPIKey   string `env:"EMAIL_API_KEY" validate:"required_with=EmailProvider"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"required_with=EmailProvider"`

	DiscordWebhookURL string `env:"DISCORD_WEBHOOK_URL" validate:"omitempty,url"`

	AdminUsername    string `env:"ADMIN_USERNAME"`
	AdminPassword    string `env:"ADMIN_PASSWORD" validate:"required_with=AdminUsername"`
	AdminTokenSecret string `env:"ADMIN_TOKEN_SECRET" validate:"required_with=AdminUsername"`

	EncryptionKey string `env:"ENCRYPTION_KEY"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" validate:"required_if=CacheProvider redis"`

	SentryDSN              string  `env:"SENTRY_DSN" validate:"omitempty,url"`
	SentryEnvironment      string  `env:"SENTRY_ENVIRONMENT" envDefault:"production"`
	SentryTracesSampleRate float64 `env:"SENTRY_TRACES_SAMPLE_RATE" envDefault:"0.2" validate:"gte=0,lte=1"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

const minAdminTokenSecretLength = 32

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasPayPalClientID := strings.TrimSpace(c.PayPalClientID) != ""
	hasPayPalClientSecret := strings.TrimSpace(c.PayPalClientSecret) != ""
	if hasPayPalClientID != hasPayPalClientSecret {
		return fmt.Errorf("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET must be set together")
	}

	if c.AdminEnabled() && len(c.AdminTokenSecret) < minAdminTokenSecretLength {
		return fmt.Errorf("ADMIN_TOKEN_SECRET must be at least %d characters", minAdminTokenSecretLength)
	}

	if !c.StripeEnabled() && !c.PayPalEnabled() {
		return fmt.Errorf("at least one payment provider must be configured (STRIPE_SECRET_KEY or PAYPAL_CLIENT_ID)")
	}

	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("BASE_URL must use https outside local development")
	}

	return nil
}

func (c *Config) StripeEnabled() bool {
	return strings.TrimSpace(c.StripeSecretKey) != ""
}

func (c *Config) PayPalEnabled() bool {
	return strings.TrimSpace(c.PayPalClientID) != ""
}

func (c *Config) AdminEnabled() bool {
	return strings.TrimSpace(c.AdminUsername) != ""
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
