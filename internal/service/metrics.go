package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSent           = "sent"
	outcomeDeliveryFailed = "delivery_failed"
	outcomeRenderFailed   = "render_failed"
)

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_dispatch_total",
			Help: "Receipt dispatches by outcome",
		},
		[]string{"outcome", "transport"},
	)

	renderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "receipt_render_duration_seconds",
			Help:    "Time spent rendering a receipt PDF",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "receipt_send_duration_seconds",
			Help:    "Time spent handing a receipt to the mail transport",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	pdfSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "receipt_pdf_size_bytes",
			Help:    "Size of rendered receipt PDFs",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 10),
		},
	)
)
