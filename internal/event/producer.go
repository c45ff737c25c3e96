package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TON618OFF/FactorioStore/internal/domain"
	pkgkafka "github.com/TON618OFF/FactorioStore/pkg/kafka"
	"github.com/TON618OFF/FactorioStore/pkg/logger"
)

// Topics published by the receipt service.
var (
	TopicReceiptSent   = pkgkafka.Topic("receipt", "sent")
	TopicReceiptFailed = pkgkafka.Topic("receipt", "failed")
)

const (
	AggregateTypeReceipt = "receipt"
	SourceReceiptService = "receipt-service"
)

// ReceiptOutcomeData is the payload of receipt.sent and receipt.failed.
type ReceiptOutcomeData struct {
	OrderID    string `json:"order_id"`
	Recipient  string `json:"recipient"`
	Attachment string `json:"attachment"`
	SizeBytes  int    `json:"size_bytes"`
	Error      string `json:"error,omitempty"`
}

// Producer publishes receipt outcome events. A Producer without a Kafka
// producer publishes nothing.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates an outcome event producer. kafka may be nil.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishReceiptSent publishes a receipt.sent event.
func (p *Producer) PublishReceiptSent(ctx context.Context, result *domain.DispatchResult) error {
	return p.publish(ctx, TopicReceiptSent, result)
}

// PublishReceiptFailed publishes a receipt.failed event.
func (p *Producer) PublishReceiptFailed(ctx context.Context, result *domain.DispatchResult) error {
	return p.publish(ctx, TopicReceiptFailed, result)
}

func (p *Producer) publish(ctx context.Context, topic string, result *domain.DispatchResult) error {
	if p == nil || p.kafka == nil {
		return nil
	}

	data := ReceiptOutcomeData{
		OrderID:    result.OrderID,
		Recipient:  result.Recipient,
		Attachment: result.Attachment,
		SizeBytes:  result.SizeBytes,
		Error:      result.Error,
	}

	evt, err := pkgkafka.NewEvent(topic, result.OrderID, AggregateTypeReceipt, SourceReceiptService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published receipt outcome event",
		slog.String("topic", topic),
		slog.String("order_id", result.OrderID),
	)
	return nil
}
