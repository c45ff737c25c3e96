package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TON618OFF/FactorioStore/internal/domain"
	"github.com/TON618OFF/FactorioStore/pkg/httputil"
	"github.com/TON618OFF/FactorioStore/pkg/middleware"
)

// ReceiptService is what the HTTP surface needs from the dispatcher.
type ReceiptService interface {
	Dispatch(ctx context.Context, orderID string, order *domain.OrderRecord) (*domain.DispatchResult, error)
	ListAttempts(ctx context.Context, orderID string) ([]domain.DeliveryAttempt, error)
}

// ReceiptHandler handles HTTP requests for receipt endpoints.
type ReceiptHandler struct {
	service ReceiptService
	logger  *slog.Logger
}

// NewReceiptHandler creates a new receipt HTTP handler.
func NewReceiptHandler(svc ReceiptService, logger *slog.Logger) *ReceiptHandler {
	return &ReceiptHandler{service: svc, logger: logger}
}

// SendReceipt handles POST /api/v1/orders/{orderId}/receipt. The body is the
// order record. A failed delivery is still a 200 with delivered=false.
func (h *ReceiptHandler) SendReceipt(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.RequireParam(w, middleware.OrderIDParam, chi.URLParam(r, middleware.OrderIDParam))
	if !ok {
		return
	}

	var order domain.OrderRecord
	if !httputil.DecodeJSON(w, r, &order) {
		return
	}

	result, err := h.service.Dispatch(r.Context(), orderID, &order)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// ListAttempts handles GET /api/v1/orders/{orderId}/receipt/attempts.
func (h *ReceiptHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.RequireParam(w, middleware.OrderIDParam, chi.URLParam(r, middleware.OrderIDParam))
	if !ok {
		return
	}

	attempts, err := h.service.ListAttempts(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, attempts)
}
