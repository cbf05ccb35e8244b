// Package pricing computes the charge for an order from a price snapshot.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/afrobirthday/storefront/internal/models"
)

// Settings keys as stored in the settings table.
const (
	KeyBase            = "price_base"
	KeyCustomSong      = "price_custom_song"
	KeyExpressDelivery = "price_express_delivery"
)

var (
	ErrInvalidOption = errors.New("invalid order option")
	ErrInvalidPrice  = errors.New("price must be a non-negative amount")
)

// Settings is one snapshot of the admin-configured prices, in USD cents.
type Settings struct {
	BaseCents            int64
	CustomSongCents      int64
	ExpressDeliveryCents int64
}

var DefaultSettings = Settings{
	BaseCents:            1999,
	CustomSongCents:      999,
	ExpressDeliveryCents: 799,
}

func (s Settings) Validate() error {
	if s.BaseCents < 0 || s.CustomSongCents < 0 || s.ExpressDeliveryCents < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Options are the buyer's choices that affect price.
type Options struct {
	Music    models.MusicOption
	Delivery models.DeliveryMethod
}

type Resolver struct{}

// Resolve returns the order total in cents. It is a pure function of the
// snapshot and options.
func (Resolver) Resolve(settings Settings, opts Options) (int64, error) {
	if err := settings.Validate(); err != nil {
		return 0, err
	}

	total := settings.BaseCents

	switch opts.Music {
	case models.MusicDefault:
	case models.MusicCustom:
		total += settings.CustomSongCents
	default:
		return 0, fmt.Errorf("%w: music option %q", ErrInvalidOption, opts.Music)
	}

	switch opts.Delivery {
	case models.DeliveryStandard:
	case models.DeliveryExpress:
		total += settings.ExpressDeliveryCents
	default:
		return 0, fmt.Errorf("%w: delivery method %q", ErrInvalidOption, opts.Delivery)
	}

	return total, nil
}

// ParseCents converts a decimal dollar string such as "19.99" into cents,
// rounding half away from zero.
func ParseCents(value string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, value)
	}
	return DollarsToCents(amount)
}

func DollarsToCents(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPrice, amount.String())
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}

// FormatCents renders cents as a two-decimal dollar string, e.g. 3797 -> "37.97".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
