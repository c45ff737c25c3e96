package repository

import (
	"context"

	"github.com/TON618OFF/FactorioStore/internal/domain"
)

// AttemptRepository records receipt delivery attempts.
type AttemptRepository interface {
	// Create stores one attempt.
	Create(ctx context.Context, attempt *domain.DeliveryAttempt) error

	// ListByOrderID returns the attempts for an order, newest first.
	ListByOrderID(ctx context.Context, orderID string) ([]domain.DeliveryAttempt, error)
}

// NoopAttemptRepository is wired when the ledger is disabled. Writes are
// dropped and lookups find nothing.
type NoopAttemptRepository struct{}

// Create discards the attempt.
func (NoopAttemptRepository) Create(context.Context, *domain.DeliveryAttempt) error {
	return nil
}

// ListByOrderID always returns an empty list.
func (NoopAttemptRepository) ListByOrderID(context.Context, string) ([]domain.DeliveryAttempt, error) {
	return []domain.DeliveryAttempt{}, nil
}
