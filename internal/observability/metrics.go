package observability

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

type meterContextKey struct{}

// WithMeter returns a context carrying the provided meter.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterContextKey{}, meter.WithCtx(ctx))
}

// MeterFromContext returns the request-scoped meter from context or a new one.
func MeterFromContext(ctx context.Context) sentry.Meter {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter, ok := ctx.Value(meterContextKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}

// WithOrder tags every later measurement in ctx with the order and the
// payment provider handling it. Webhooks only learn the order id after the
// attempt lookup, so this runs mid-request rather than in middleware.
func WithOrder(ctx context.Context, orderID, provider string) context.Context {
	meter := MeterFromContext(ctx)
	attrs := make([]attribute.Builder, 0, 2)
	if orderID != "" {
		attrs = append(attrs, attribute.String("order.id", orderID))
	}
	if provider != "" {
		attrs = append(attrs, attribute.String("payment.provider", provider))
	}
	if len(attrs) == 0 {
		return ctx
	}
	meter.SetAttributes(attrs...)
	return WithMeter(ctx, meter)
}
