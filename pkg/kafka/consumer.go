package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TON618OFF/FactorioStore/pkg/logger"
)

const tracerName = "github.com/TON618OFF/FactorioStore/pkg/kafka"

// Handler is a function that processes a Kafka event.
type Handler func(ctx context.Context, event *Event) error

// Reader is the subset of *kafka.Reader the consumer depends on.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterPublisher receives messages whose handler failed on every attempt.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, originalMsg kafka.Message, lastErr error, consumerGroup string) error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// MaxAttempts is how many times the handler runs for one message before
	// the message is given up on. Values below 1 mean a single attempt.
	MaxAttempts int

	// RetryBackoff is multiplied by the attempt number between attempts.
	RetryBackoff time.Duration
}

// maxFetchBackoff caps the pause between failed fetches.
const maxFetchBackoff = 5 * time.Second

// ConsumerOption customizes a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter routes failed messages to the given publisher before they
// are committed.
func WithDeadLetter(p DeadLetterPublisher) ConsumerOption {
	return func(c *Consumer) {
		c.dlq = p
	}
}

// Consumer reads one topic as part of a consumer group and hands every decoded
// event to its handler. Messages are committed after handling whatever the
// outcome, so a failing message never blocks the partition.
type Consumer struct {
	reader      Reader
	topic       string
	group       string
	maxAttempts int
	backoff     time.Duration
	handler     Handler
	dlq         DeadLetterPublisher
	logger      *slog.Logger
	closeOnce   sync.Once
}

// NewConsumer creates a new Kafka consumer for a specific topic and group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return NewConsumerWithReader(r, cfg, handler, logger, opts...)
}

// NewConsumerWithReader builds a consumer on top of an existing reader.
func NewConsumerWithReader(r Reader, cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	c := &Consumer{
		reader:      r,
		topic:       cfg.Topic,
		group:       cfg.GroupID,
		maxAttempts: attempts,
		backoff:     backoff,
		handler:     handler,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Topic returns the topic this consumer reads.
func (c *Consumer) Topic() string {
	return c.topic
}

// Start begins consuming messages. It blocks until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.String("topic", c.topic),
		slog.String("group", c.group),
		slog.Int("max_attempts", c.maxAttempts),
	)

	var fetchFailures int
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("topic", c.topic))
				return c.Close()
			}
			fetchFailures++
			delay := min(time.Duration(fetchFailures)*c.backoff, maxFetchBackoff)
			c.logger.Error("failed to fetch message",
				slog.String("topic", c.topic),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
			select {
			case <-ctx.Done():
				c.logger.Info("consumer stopping", slog.String("topic", c.topic))
				return c.Close()
			case <-time.After(delay):
			}
			continue
		}
		fetchFailures = 0

		countConsumed(msg.Topic, c.group, OutcomeReceived)
		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// process decodes and handles a single message. It never returns an error:
// every outcome ends with the message being committed by the caller.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	start := time.Now()
	defer func() {
		ConsumerProcessingDuration.WithLabelValues(msg.Topic, c.group).Observe(time.Since(start).Seconds())
	}()

	ctx = otel.GetTextMapPropagator().Extract(ctx, NewKafkaHeaderCarrier(&msg.Headers))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "undecodable message")
		c.logger.ErrorContext(ctx, "failed to unmarshal event",
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
		)
		c.fail(ctx, msg, err)
		return
	}

	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.handler(ctx, event)
		if lastErr == nil {
			break
		}

		c.logger.WarnContext(ctx, "handler failed",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", lastErr.Error()),
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.maxAttempts),
		)

		if attempt < c.maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "handler failed")
		c.fail(ctx, msg, lastErr)
		return
	}

	countConsumed(msg.Topic, c.group, OutcomeProcessed)
}

func (c *Consumer) fail(ctx context.Context, msg kafka.Message, cause error) {
	countConsumed(msg.Topic, c.group, OutcomeFailed)

	if c.dlq == nil {
		c.logger.ErrorContext(ctx, "dropping message after failed handling",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", cause.Error()),
		)
		return
	}

	if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
		c.logger.ErrorContext(ctx, "failed to dead-letter message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		return
	}
	countConsumed(msg.Topic, c.group, OutcomeDeadLettered)
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
