package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/afrobirthday/storefront/internal/email"
)

type keyCheckProvider struct {
	err    error
	checks int
}

func (p *keyCheckProvider) SendEmail(context.Context, *email.Email) error {
	return nil
}

func (p *keyCheckProvider) ValidateAPIKey(ctx context.Context) error {
	p.checks++
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("key check must be bounded")
	}
	return p.err
}

func TestCheckEmailProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		want    bool
		wantLog string
	}{
		{"accepted", nil, true, "email provider ready"},
		{"rejected", errors.New("401 unauthorized"), false, "rejected the API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			provider := &keyCheckProvider{err: tt.err}

			if got := checkEmailProvider(provider, "postmark", logger); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			if provider.checks != 1 {
				t.Fatalf("expected one key check, got %d", provider.checks)
			}
			if !strings.Contains(buf.String(), tt.wantLog) {
				t.Fatalf("expected log %q, got %q", tt.wantLog, buf.String())
			}
		})
	}
}
