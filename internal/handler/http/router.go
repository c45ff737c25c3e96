package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TON618OFF/FactorioStore/pkg/health"
	"github.com/TON618OFF/FactorioStore/pkg/middleware"
)

// ServiceName labels HTTP metrics and spans.
const ServiceName = "receipt-service"

// NewRouter creates a chi router with all receipt service routes registered.
// requestTimeout bounds the push endpoint, which renders and sends inline.
func NewRouter(svc ReceiptService, healthHandler *health.Handler, logger *slog.Logger, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	receiptHandler := NewReceiptHandler(svc, logger)

	r.Route("/api/v1/orders/{"+middleware.OrderIDParam+"}/receipt", func(r chi.Router) {
		r.Use(middleware.RequestLogger(logger))
		if requestTimeout > 0 {
			r.Use(chimw.Timeout(requestTimeout))
		}

		r.Post("/", receiptHandler.SendReceipt)
		r.Get("/attempts", receiptHandler.ListAttempts)
	})

	return r
}
