package postgres

import (
	"context"
	"fmt"

	"github.com/TON618OFF/FactorioStore/internal/domain"
	"github.com/TON618OFF/FactorioStore/pkg/database"
)

const (
	insertAttemptSQL = `
		INSERT INTO receipt_delivery_attempts (id, order_id, recipient, filename, size_bytes, transport, status, error, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	listAttemptsSQL = `
		SELECT id, order_id, recipient, filename, size_bytes, transport, status, error, attempted_at
		FROM receipt_delivery_attempts
		WHERE order_id = $1
		ORDER BY attempted_at DESC`
)

// AttemptRepository implements repository.AttemptRepository using PostgreSQL.
type AttemptRepository struct {
	pool   database.DBTX
	tracer database.QueryTracer
}

// NewAttemptRepository creates a PostgreSQL-backed delivery ledger.
func NewAttemptRepository(pool database.DBTX, tracer database.QueryTracer) *AttemptRepository {
	return &AttemptRepository{pool: pool, tracer: tracer}
}

// Create inserts a delivery attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *domain.DeliveryAttempt) (err error) {
	ctx, end := r.tracer.Start(ctx, "CreateAttempt", insertAttemptSQL)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, insertAttemptSQL,
		a.ID,
		a.OrderID,
		a.Recipient,
		a.Filename,
		a.SizeBytes,
		a.Transport,
		a.Status,
		a.Error,
		a.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}
	return nil
}

// ListByOrderID returns every attempt for the order, newest first.
func (r *AttemptRepository) ListByOrderID(ctx context.Context, orderID string) (attempts []domain.DeliveryAttempt, err error) {
	ctx, end := r.tracer.Start(ctx, "ListAttempts", listAttemptsSQL)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, listAttemptsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("list delivery attempts: %w", err)
	}
	defer rows.Close()

	attempts = make([]domain.DeliveryAttempt, 0)
	for rows.Next() {
		var a domain.DeliveryAttempt
		if err := rows.Scan(
			&a.ID,
			&a.OrderID,
			&a.Recipient,
			&a.Filename,
			&a.SizeBytes,
			&a.Transport,
			&a.Status,
			&a.Error,
			&a.AttemptedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery attempt rows: %w", err)
	}
	return attempts, nil
}
