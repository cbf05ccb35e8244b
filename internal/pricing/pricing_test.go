package pricing

import (
	"errors"
	"testing"

	"github.com/afrobirthday/storefront/internal/models"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings Settings
		opts     Options
		want     int64
		wantErr  error
	}{
		{
			name:     "base only",
			settings: DefaultSettings,
			opts:     Options{Music: models.MusicDefault, Delivery: models.DeliveryStandard},
			want:     1999,
		},
		{
			name:     "custom song and express",
			settings: DefaultSettings,
			opts:     Options{Music: models.MusicCustom, Delivery: models.DeliveryExpress},
			want:     3797,
		},
		{
			name:     "express only",
			settings: Settings{BaseCents: 1000, CustomSongCents: 500, ExpressDeliveryCents: 250},
			opts:     Options{Music: models.MusicDefault, Delivery: models.DeliveryExpress},
			want:     1250,
		},
		{
			name:     "unknown music option",
			settings: DefaultSettings,
			opts:     Options{Music: "karaoke", Delivery: models.DeliveryStandard},
			wantErr:  ErrInvalidOption,
		},
		{
			name:     "unknown delivery",
			settings: DefaultSettings,
			opts:     Options{Music: models.MusicDefault, Delivery: "drone"},
			wantErr:  ErrInvalidOption,
		},
		{
			name:     "negative price in snapshot",
			settings: Settings{BaseCents: -1},
			opts:     Options{Music: models.MusicDefault, Delivery: models.DeliveryStandard},
			wantErr:  ErrInvalidPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Resolver{}.Resolve(tt.settings, tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d cents, got %d", tt.want, got)
			}
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	t.Parallel()

	opts := Options{Music: models.MusicCustom, Delivery: models.DeliveryExpress}
	first, err := Resolver{}.Resolve(DefaultSettings, opts)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for range 10 {
		again, err := Resolver{}.Resolve(DefaultSettings, opts)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if again != first {
			t.Fatalf("expected %d, got %d", first, again)
		}
	}
}

func TestParseCents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "19.99", want: 1999},
		{in: " 7.99 ", want: 799},
		{in: "10", want: 1000},
		{in: "0.005", want: 1},
		{in: "9.994", want: 999},
		{in: "-1.00", wantErr: true},
		{in: "NaN", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseCents(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPrice) {
				t.Errorf("ParseCents(%q) expected ErrInvalidPrice, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCents(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCents(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatCents(t *testing.T) {
	t.Parallel()

	tests := map[int64]string{
		3797: "37.97",
		1999: "19.99",
		5:    "0.05",
		0:    "0.00",
		1000: "10.00",
	}
	for cents, want := range tests {
		if got := FormatCents(cents); got != want {
			t.Errorf("FormatCents(%d) = %q, want %q", cents, got, want)
		}
	}
}
