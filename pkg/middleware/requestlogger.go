package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TON618OFF/FactorioStore/pkg/logger"
)

// OrderIDParam is the route parameter holding the order id.
const OrderIDParam = "orderId"

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, order_id, trace_id and span_id. Mount it inside a chi route
// group after RequestLogging and Tracing so all of those are already known.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if orderID := chi.URLParam(r, OrderIDParam); orderID != "" {
				ctx = logger.WithOrderID(ctx, orderID)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
