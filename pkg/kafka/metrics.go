package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for ConsumerMessages.
const (
	OutcomeReceived     = "received"
	OutcomeProcessed    = "processed"
	OutcomeFailed       = "failed"
	OutcomeDeadLettered = "dead_lettered"
)

// Outcome label values for ProducerMessages.
const (
	OutcomePublished = "published"
	OutcomeError     = "error"
)

var (
	// ConsumerMessages counts consumed messages by what happened to them.
	// A message is counted as received once and then once more for its outcome.
	ConsumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_messages_total",
			Help: "Kafka messages seen by the consumer, by outcome",
		},
		[]string{"topic", "consumer_group", "outcome"},
	)

	ConsumerProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_consumer_processing_duration_seconds",
			Help:    "Time spent decoding and handling one Kafka message",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"topic", "consumer_group"},
	)

	// ConsumerDuplicates counts events skipped by the idempotency guard.
	ConsumerDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_duplicates_total",
			Help: "Events skipped because their key was already handled",
		},
		[]string{"event_type"},
	)

	ProducerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_producer_messages_total",
			Help: "Kafka publish attempts, by outcome",
		},
		[]string{"topic", "outcome"},
	)

	ProducerPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_producer_publish_duration_seconds",
			Help:    "Duration of Kafka publish calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)

func countConsumed(topic, group, outcome string) {
	ConsumerMessages.WithLabelValues(topic, group, outcome).Inc()
}
