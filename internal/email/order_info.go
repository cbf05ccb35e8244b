package email

import (
	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/pricing"
)

// NewOrderInfo builds the template view of an order.
func NewOrderInfo(order *models.Order, siteURL string) *OrderInfo {
	info := &OrderInfo{
		OrderID:       order.ID.String(),
		CustomerEmail: order.Email,
		Total:         pricing.FormatCents(order.TotalCents),
		DeliveryLabel: DeliveryLabel(order.DeliveryMethod),
		MusicLabel:    MusicLabel(order.MusicOption),
		MusicLink:     order.MusicLink,
		GiftNote:      order.GiftNote,
		Message:       order.Message,
		SiteURL:       siteURL,
	}
	if !order.CreatedAt.IsZero() {
		info.OrderDate = order.CreatedAt.UTC().Format("January 2, 2006 15:04 MST")
	}
	return info
}

func DeliveryLabel(method models.DeliveryMethod) string {
	if method == models.DeliveryExpress {
		return "Express (12-24 hours)"
	}
	return "Standard (24-48 hours)"
}

func MusicLabel(option models.MusicOption) string {
	if option == models.MusicCustom {
		return "Custom song"
	}
	return "We choose music"
}
