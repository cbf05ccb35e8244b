// Package email sends customer notifications through a transactional provider.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrNotConfigured = errors.New("email provider not configured")

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
	ValidateAPIKey(ctx context.Context) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
	// Tag groups messages in the provider dashboard, e.g. "order_paid".
	Tag string
}

type Config struct {
	Provider   string
	APIKey     string
	From       string
	HTTPClient *http.Client
}

// NewProvider returns ErrNotConfigured when no provider is named, so callers
// can run without outbound email.
func NewProvider(config Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(config.Provider))
	if name == "" {
		return nil, ErrNotConfigured
	}
	if config.APIKey == "" || config.From == "" {
		return nil, fmt.Errorf("EMAIL_API_KEY and EMAIL_FROM are required for provider %q", name)
	}

	switch name {
	case "resend":
		return NewResendProvider(config.APIKey, config.From, config.HTTPClient), nil
	case "postmark":
		return NewPostmarkProvider(config.APIKey, config.From, config.HTTPClient), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be either 'resend' or 'postmark'")
	}
}
