package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus collectors.
//
// Every Engine owns one Metrics registered on the Registerer passed to
// NewMetrics; tests use a fresh prometheus.NewRegistry() per engine.
type Metrics struct {
	RecordsRead       prometheus.Counter
	RecordsRouted     *prometheus.CounterVec
	SnapshotsWritten  *prometheus.CounterVec
	HandlerErrors     *prometheus.CounterVec
	BackpressureWaits *prometheus.CounterVec
	ChannelDepth      *prometheus.GaugeVec
	HandlerDuration   *prometheus.HistogramVec
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsRead: f.NewCounter(prometheus.CounterOpts{
			Name: "mongoversioning_oplog_records_read_total",
			Help: "Total number of oplog records read by the tailer",
		}),
		RecordsRouted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mongoversioning_records_routed_total",
			Help: "Oplog records routed to a collection channel",
		}, []string{"collection"}),
		SnapshotsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mongoversioning_snapshots_written_total",
			Help: "History snapshots appended, by operation",
		}, []string{"collection", "op"}),
		HandlerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mongoversioning_handler_errors_total",
			Help: "Handler failures that stalled a collection channel",
		}, []string{"collection", "code"}),
		BackpressureWaits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mongoversioning_backpressure_waits_total",
			Help: "Times the tailer blocked on a full collection channel",
		}, []string{"collection"}),
		ChannelDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mongoversioning_channel_depth",
			Help: "Records buffered in a collection channel",
		}, []string{"collection"}),
		HandlerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mongoversioning_handler_duration_seconds",
			Help:    "Duration of a single record handler",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"collection"}),
	}
}
