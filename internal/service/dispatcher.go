package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/TON618OFF/FactorioStore/internal/domain"
	"github.com/TON618OFF/FactorioStore/internal/event"
	"github.com/TON618OFF/FactorioStore/internal/mail"
	"github.com/TON618OFF/FactorioStore/internal/receipt"
	"github.com/TON618OFF/FactorioStore/internal/repository"
	apperrors "github.com/TON618OFF/FactorioStore/pkg/errors"
	"github.com/TON618OFF/FactorioStore/pkg/logger"
	"github.com/TON618OFF/FactorioStore/pkg/tracing"
)

const tracerName = "github.com/TON618OFF/FactorioStore/internal/service"

// Dispatcher renders a receipt for an order and emails it to the customer.
// It holds no per-order state and is safe for concurrent use.
type Dispatcher struct {
	renderer  receipt.Renderer
	transport mail.Transport
	from      string
	ledger    repository.AttemptRepository
	events    *event.Producer
	now       func() time.Time
	location  *time.Location
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the source of the receipt timestamp.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLocation sets the time zone the receipt timestamp is printed in.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) { d.location = loc }
}

// WithLedger records every delivery attempt in repo.
func WithLedger(repo repository.AttemptRepository) Option {
	return func(d *Dispatcher) { d.ledger = repo }
}

// WithEvents publishes receipt.sent and receipt.failed through p.
func WithEvents(p *event.Producer) Option {
	return func(d *Dispatcher) { d.events = p }
}

// NewDispatcher creates a dispatcher sending from the given address.
func NewDispatcher(renderer receipt.Renderer, transport mail.Transport, from string, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		renderer:  renderer,
		transport: transport,
		from:      from,
		ledger:    repository.NoopAttemptRepository{},
		now:       time.Now,
		location:  time.Local,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch renders the receipt for order and sends it once. It returns after
// the transport call has finished.
//
// A render failure is returned and nothing is sent. A delivery failure is
// logged and reported through the result with a nil error.
func (d *Dispatcher) Dispatch(ctx context.Context, orderID string, order *domain.OrderRecord) (*domain.DispatchResult, error) {
	if order == nil {
		return nil, apperrors.InvalidInput("order is required")
	}

	ctx, span := tracing.Tracer(tracerName).Start(ctx, "receipt.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("order.items", len(order.Items)),
		attribute.String("mail.transport", d.transport.Name()),
	)

	ctx = logger.WithOrderID(ctx, orderID)
	log := logger.WithContext(ctx, d.logger)

	layout, err := ComposeReceipt(orderID, order, d.now().In(d.location))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compose receipt")
		return nil, apperrors.RenderFailed(err)
	}

	pdf, renderTime, err := d.render(ctx, layout)
	if err != nil {
		dispatchTotal.WithLabelValues(outcomeRenderFailed, d.transport.Name()).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "render receipt")
		log.ErrorContext(ctx, "receipt render failed", slog.String("error", err.Error()))
		return nil, apperrors.RenderFailed(err)
	}

	msg := domain.NewReceiptMessage(d.from, order.Email, orderID, pdf)
	result := &domain.DispatchResult{
		OrderID:          orderID,
		Recipient:        order.Email,
		Attachment:       domain.ReceiptFilename(orderID),
		SizeBytes:        len(pdf),
		RenderDurationMS: renderTime.Milliseconds(),
	}

	attemptedAt := time.Now().UTC()
	sendStart := time.Now()
	sendErr := d.transport.Send(ctx, msg)
	sendDuration.WithLabelValues(d.transport.Name()).Observe(time.Since(sendStart).Seconds())

	if sendErr != nil {
		result.Error = sendErr.Error()
		dispatchTotal.WithLabelValues(outcomeDeliveryFailed, d.transport.Name()).Inc()
		span.RecordError(sendErr)
		span.SetStatus(codes.Error, "deliver receipt")
		log.ErrorContext(ctx, "receipt delivery failed",
			slog.String("recipient", order.Email),
			slog.String("transport", d.transport.Name()),
			slog.String("error", sendErr.Error()),
		)
	} else {
		result.Delivered = true
		dispatchTotal.WithLabelValues(outcomeSent, d.transport.Name()).Inc()
		log.InfoContext(ctx, "receipt sent",
			slog.String("recipient", order.Email),
			slog.String("attachment", result.Attachment),
			slog.Int("size_bytes", result.SizeBytes),
		)
	}
	span.SetAttributes(attribute.Bool("receipt.delivered", result.Delivered))

	d.record(ctx, log, result, attemptedAt)
	d.publish(ctx, log, result)

	return result, nil
}

func (d *Dispatcher) render(ctx context.Context, layout *receipt.Layout) ([]byte, time.Duration, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "receipt.Render")
	defer span.End()

	start := time.Now()
	pdf, err := d.renderer.Render(ctx, layout)
	elapsed := time.Since(start)
	renderDuration.Observe(elapsed.Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, elapsed, err
	}

	pdfSize.Observe(float64(len(pdf)))
	span.SetAttributes(attribute.Int("receipt.size_bytes", len(pdf)))
	return pdf, elapsed, nil
}

func (d *Dispatcher) record(ctx context.Context, log *slog.Logger, result *domain.DispatchResult, at time.Time) {
	attempt := &domain.DeliveryAttempt{
		ID:          uuid.New().String(),
		OrderID:     result.OrderID,
		Recipient:   result.Recipient,
		Filename:    result.Attachment,
		SizeBytes:   result.SizeBytes,
		Transport:   d.transport.Name(),
		Status:      domain.AttemptStatusSent,
		Error:       result.Error,
		AttemptedAt: at,
	}
	if !result.Delivered {
		attempt.Status = domain.AttemptStatusFailed
	}

	if err := d.ledger.Create(ctx, attempt); err != nil {
		log.ErrorContext(ctx, "failed to record delivery attempt",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) publish(ctx context.Context, log *slog.Logger, result *domain.DispatchResult) {
	var err error
	if result.Delivered {
		err = d.events.PublishReceiptSent(ctx, result)
	} else {
		err = d.events.PublishReceiptFailed(ctx, result)
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to publish receipt outcome event", slog.String("error", err.Error()))
	}
}

// ListAttempts returns the recorded delivery attempts for an order. With the
// ledger disabled, or when the order has none, it returns a not found error.
func (d *Dispatcher) ListAttempts(ctx context.Context, orderID string) ([]domain.DeliveryAttempt, error) {
	attempts, err := d.ledger.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, apperrors.NotFound("receipt attempts for order", orderID)
	}
	return attempts, nil
}
