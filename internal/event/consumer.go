package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TON618OFF/FactorioStore/internal/domain"
	apperrors "github.com/TON618OFF/FactorioStore/pkg/errors"
	pkgkafka "github.com/TON618OFF/FactorioStore/pkg/kafka"
	"github.com/TON618OFF/FactorioStore/pkg/logger"
)

// TopicOrderCreated carries newly created orders.
var TopicOrderCreated = pkgkafka.Topic("order", "created")

// ConsumerGroupID is the default consumer group of the receipt service.
const ConsumerGroupID = "receipt-service"

// OrderDispatcher turns an order into a delivered receipt.
type OrderDispatcher interface {
	Dispatch(ctx context.Context, orderID string, order *domain.OrderRecord) (*domain.DispatchResult, error)
}

// ConsumerHandler routes incoming Kafka events to the dispatcher.
type ConsumerHandler struct {
	dispatcher OrderDispatcher
	logger     *slog.Logger
}

// NewConsumerHandler creates a new event consumer handler.
func NewConsumerHandler(dispatcher OrderDispatcher, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{dispatcher: dispatcher, logger: logger}
}

// Handle processes an incoming event based on its type. Unknown types are
// skipped.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicOrderCreated:
		return h.handleOrderCreated(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleOrderCreated dispatches a receipt for the order in the payload.
// Missing fields render blank. A failed delivery is not an error here; only
// undecodable payloads, a missing order id and render failures are.
func (h *ConsumerHandler) handleOrderCreated(ctx context.Context, event *pkgkafka.Event) error {
	var order domain.OrderRecord
	if err := event.UnmarshalData(&order); err != nil {
		return fmt.Errorf("decode order.created payload: %w", err)
	}

	orderID := OrderID(event, &order)
	if orderID == "" {
		return fmt.Errorf("order.created event %s: %w", event.EventID, apperrors.InvalidInput("order id is missing"))
	}

	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}
	ctx = logger.WithOrderID(ctx, orderID)

	h.logger.InfoContext(ctx, "received order.created event",
		slog.String("event_id", event.EventID),
		slog.String("order_id", orderID),
		slog.Int("items", len(order.Items)),
	)

	if _, err := h.dispatcher.Dispatch(ctx, orderID, &order); err != nil {
		return fmt.Errorf("dispatch receipt for order %s: %w", orderID, err)
	}
	return nil
}

// OrderID picks the order identifier: the envelope's aggregate id, else the
// payload's own id.
func OrderID(event *pkgkafka.Event, order *domain.OrderRecord) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	if order != nil {
		return order.ID
	}
	return ""
}

// DedupKey keys the idempotency guard by order rather than by event, so a
// re-published order does not get a second receipt. Events that are not
// order.created pass through unguarded.
func DedupKey(event *pkgkafka.Event) string {
	if event.EventType != TopicOrderCreated {
		return ""
	}
	if event.AggregateID != "" {
		return event.AggregateID
	}
	var order domain.OrderRecord
	if err := event.UnmarshalData(&order); err != nil {
		return ""
	}
	return order.ID
}

// ConsumerSettings configures the order consumer.
type ConsumerSettings struct {
	Brokers      []string
	GroupID      string
	Topic        string
	MaxAttempts  int
	RetryBackoff time.Duration

	// Dedup, when set, drops orders that already got a receipt.
	Dedup pkgkafka.IdempotencyStore

	// DeadLetter, when set, receives messages whose handling failed.
	DeadLetter pkgkafka.DeadLetterPublisher
}

// NewConsumer builds the Kafka consumer for order.created.
func NewConsumer(s ConsumerSettings, handler *ConsumerHandler, logger *slog.Logger) *pkgkafka.Consumer {
	return pkgkafka.NewConsumer(consumerConfig(s), wrapHandler(s, handler, logger), logger, consumerOptions(s)...)
}

func consumerConfig(s ConsumerSettings) pkgkafka.ConsumerConfig {
	cfg := pkgkafka.ConsumerConfig{
		Brokers:      s.Brokers,
		GroupID:      s.GroupID,
		Topic:        s.Topic,
		MinBytes:     1,
		MaxBytes:     10e6,
		MaxAttempts:  s.MaxAttempts,
		RetryBackoff: s.RetryBackoff,
	}
	if cfg.GroupID == "" {
		cfg.GroupID = ConsumerGroupID
	}
	if cfg.Topic == "" {
		cfg.Topic = TopicOrderCreated
	}
	return cfg
}

func wrapHandler(s ConsumerSettings, handler *ConsumerHandler, logger *slog.Logger) pkgkafka.Handler {
	h := pkgkafka.Handler(handler.Handle)
	if s.Dedup != nil {
		h = pkgkafka.IdempotentHandlerWithKey(s.Dedup, DedupKey, h, logger)
	}
	return h
}

func consumerOptions(s ConsumerSettings) []pkgkafka.ConsumerOption {
	var opts []pkgkafka.ConsumerOption
	if s.DeadLetter != nil {
		opts = append(opts, pkgkafka.WithDeadLetter(s.DeadLetter))
	}
	return opts
}
