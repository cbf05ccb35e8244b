package services

import (
	"context"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/afrobirthday/storefront/internal/alert"
	"github.com/afrobirthday/storefront/internal/db"
	"github.com/afrobirthday/storefront/internal/email"
	"github.com/afrobirthday/storefront/internal/logging"
	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/observability"
	"github.com/afrobirthday/storefront/internal/pricing"
)

type alertSender interface {
	Send(ctx context.Context, msg alert.Message) error
}

// NotificationFanOut emails the customer and alerts staff after an order
// settles. Both sends are best effort.
type NotificationFanOut struct {
	emails   email.Provider
	renderer *email.Renderer
	alerts   alertSender
	siteURL  string
	logger   *slog.Logger
}

// NewNotificationFanOut accepts a nil email provider or alert client; the
// matching channel is then skipped.
func NewNotificationFanOut(emails email.Provider, renderer *email.Renderer, alerts *alert.DiscordClient, siteURL string, logger *slog.Logger) *NotificationFanOut {
	n := &NotificationFanOut{
		emails:   emails,
		renderer: renderer,
		siteURL:  siteURL,
		logger:   logger,
	}
	if alerts != nil {
		n.alerts = alerts
	}
	return n
}

func (n *NotificationFanOut) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, n.logger)
}

func (n *NotificationFanOut) OrderPaid(ctx context.Context, order *db.Order) {
	if n == nil || order == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	n.sendEmail(ctx, email.TemplateOrderPaid, order)
	n.sendAlert(ctx, "order_paid", alert.Message{
		Embeds: []alert.Embed{orderEmbed("Payment confirmed", alert.ColorGreen, order)},
	})
}

func (n *NotificationFanOut) OrderCanceled(ctx context.Context, order *db.Order) {
	if n == nil || order == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	n.sendEmail(ctx, email.TemplateOrderCanceled, order)
	n.sendAlert(ctx, "order_canceled", alert.Message{
		Embeds: []alert.Embed{orderEmbed("Payment not completed", alert.ColorGrey, order)},
	})
}

func (n *NotificationFanOut) sendEmail(ctx context.Context, template string, order *db.Order) {
	if n.emails == nil || n.renderer == nil || order.Email == "" {
		return
	}
	logger := n.loggerFromContext(ctx)

	msg, err := n.renderer.Render(template, email.NewOrderInfo(order, n.siteURL))
	if err != nil {
		n.recordFailed(ctx, "email", template)
		logger.Error("failed to render order email", "error", err, "template", template, "order_id", order.ID)
		return
	}
	if err := n.emails.SendEmail(ctx, msg); err != nil {
		n.recordFailed(ctx, "email", template)
		logger.Error("failed to send order email", "error", err, "template", template, "order_id", order.ID)
		return
	}
	logger.Info("order email sent", "template", template, "order_id", order.ID)
}

func (n *NotificationFanOut) sendAlert(ctx context.Context, kind string, msg alert.Message) {
	if n.alerts == nil {
		return
	}
	if err := n.alerts.Send(ctx, msg); err != nil {
		n.recordFailed(ctx, "alert", kind)
		n.loggerFromContext(ctx).Warn("failed to send order alert", "error", err, "kind", kind)
	}
}

func (n *NotificationFanOut) recordFailed(ctx context.Context, channel, kind string) {
	observability.MeterFromContext(ctx).Count("notification.failed", 1, sentry.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("kind", kind),
	))
}

func orderEmbed(title string, color int, order *db.Order) alert.Embed {
	fields := []alert.Field{
		{Name: "Order ID", Value: order.ID.String(), Inline: true},
		{Name: "Email", Value: fallback(order.Email, "N/A"), Inline: true},
		{Name: "Total", Value: "$" + pricing.FormatCents(order.TotalCents), Inline: true},
		{Name: "Delivery", Value: email.DeliveryLabel(order.DeliveryMethod), Inline: true},
		{Name: "Music", Value: email.MusicLabel(order.MusicOption), Inline: true},
		{Name: "Attempt", Value: fallback(order.ProviderAttemptRef, "N/A"), Inline: false},
	}
	if order.ProviderCaptureRef != "" {
		fields = append(fields, alert.Field{Name: "Capture", Value: order.ProviderCaptureRef})
	}
	if order.GiftNote != "" {
		fields = append(fields, alert.Field{Name: "Gift note", Value: truncate(order.GiftNote, 1024)})
	}

	return alert.Embed{
		Title:  title + " (" + providerLabel(order.PaymentProvider) + ")",
		Color:  color,
		Fields: fields,
	}
}

func providerLabel(provider models.PaymentProvider) string {
	switch provider {
	case models.ProviderStripe:
		return "Stripe"
	case models.ProviderPayPal:
		return "PayPal"
	default:
		return "unknown provider"
	}
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// truncate keeps Discord field values under the API limit.
func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
