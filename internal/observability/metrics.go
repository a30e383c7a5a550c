package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for clipboard transfers.
//
// Each Metrics owns its registry so the CLI can dump a textfile and tests can
// create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	TransfersTotal        *prometheus.CounterVec
	TransferDuration      *prometheus.HistogramVec
	BytesTransferredTotal *prometheus.CounterVec
	PayloadSize           prometheus.Histogram
	LastTransferTimestamp *prometheus.GaugeVec
}

// NewMetrics creates and registers all transfer metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TransfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "icky_transfers_total",
				Help: "Transfers attempted, by operation and outcome",
			},
			[]string{"op", "status"},
		),

		TransferDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "icky_transfer_duration_seconds",
				Help:    "Transfer completion time distribution",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),

		BytesTransferredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "icky_bytes_transferred_total",
				Help: "Total payload bytes transferred",
			},
			[]string{"direction"},
		),

		PayloadSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "icky_payload_size_bytes",
				Help:    "Size of pushed payloads",
				Buckets: prometheus.ExponentialBuckets(64, 4, 10),
			},
		),

		LastTransferTimestamp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "icky_last_transfer_timestamp_seconds",
				Help: "Unix time of the last transfer, by operation and outcome",
			},
			[]string{"op", "status"},
		),
	}
}

// RecordTransfer records the outcome and duration of one transfer.
func (m *Metrics) RecordTransfer(op string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}

	m.TransfersTotal.WithLabelValues(op, status).Inc()
	m.TransferDuration.WithLabelValues(op).Observe(duration.Seconds())
	m.LastTransferTimestamp.WithLabelValues(op, status).SetToCurrentTime()
}

// RecordBytesSent updates metrics for pushed payload bytes.
func (m *Metrics) RecordBytesSent(n int) {
	m.PayloadSize.Observe(float64(n))
	m.BytesTransferredTotal.WithLabelValues("sent").Add(float64(n))
}

// RecordBytesReceived updates metrics for pulled payload bytes.
func (m *Metrics) RecordBytesReceived(n int64) {
	m.BytesTransferredTotal.WithLabelValues("received").Add(float64(n))
}

// Registry returns the registry holding these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current metrics in text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
