package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/gorilla/mux"

	"github.com/afrobirthday/storefront/internal/observability"
)

var meterAttributeNames = map[string]string{
	"request_id":     "http.request_id",
	"method":         "http.method",
	"path":           "url.path",
	"remote_ip":      "network.client.ip",
	"route":          "http.route",
	"user_agent":     "http.user_agent",
	"referer":        "http.referer",
	"content_length": "http.request_content_length",
}

// MetricsContext adds a request-scoped meter to the context, pre-attributed
// with the same request fields the request logger uses plus the order id when
// the URL carries one.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		fields := requestFields(r, requestIDFromRequest(r), routeLabel(r))
		attrs := make([]attribute.Builder, 0, len(fields)+1)
		for _, field := range fields {
			name, ok := meterAttributeNames[field.key]
			if !ok {
				continue
			}
			switch value := field.value.(type) {
			case int64:
				attrs = append(attrs, attribute.Int64(name, value))
			case string:
				attrs = append(attrs, attribute.String(name, value))
			default:
				attrs = append(attrs, attribute.String(name, fmt.Sprint(value)))
			}
		}
		if orderID := orderIDFromRequest(r); orderID != "" {
			attrs = append(attrs, attribute.String("order.id", orderID))
		}

		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(attrs...)

		ctx = observability.WithMeter(ctx, meter)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// orderIDFromRequest reads the order id from the admin path variable or the
// buyer-facing orderId query parameter.
func orderIDFromRequest(r *http.Request) string {
	if orderID := strings.TrimSpace(mux.Vars(r)["id"]); orderID != "" {
		return orderID
	}
	return strings.TrimSpace(r.URL.Query().Get("orderId"))
}
