package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Writer metrics
	WriterQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ironswallow_writer_queue_depth",
			Help: "Number of operations waiting in the writer queue",
		},
	)

	StatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironswallow_statements_total",
			Help: "Total number of database statements executed by mode",
		},
		[]string{"mode"},
	)

	TransactionAborts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ironswallow_transaction_aborts_total",
			Help: "Total number of transactions rolled back by the writer",
		},
	)

	// Feed metrics
	FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironswallow_frames_total",
			Help: "Total number of STOMP frames by result",
		},
		[]string{"result"},
	)

	FrameDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ironswallow_frame_duration_seconds",
			Help:    "Time taken to decode and store one frame",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ironswallow_reconnects_total",
			Help: "Total number of STOMP reconnection attempts",
		},
	)

	SequenceGapsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ironswallow_sequence_gaps_total",
			Help: "Total number of skipped-sequence warnings",
		},
	)

	// Bootstrap metrics
	BootstrapFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ironswallow_bootstrap_files_total",
			Help: "Total number of snapshot files applied",
		},
	)

	BootstrapFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironswallow_bootstrap_frames_total",
			Help: "Total number of snapshot frames by result",
		},
		[]string{"result"},
	)

	// Reference metrics
	ReferenceRefreshes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ironswallow_reference_refreshes_total",
			Help: "Total number of reference data refreshes",
		},
	)

	ReferenceLocations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ironswallow_reference_locations",
			Help: "Number of locations in the current reference snapshot",
		},
	)
)

// Register registers all metrics with Prometheus
func Register() {
	prometheus.MustRegister(
		WriterQueueDepth,
		StatementsTotal,
		TransactionAborts,
		FramesTotal,
		FrameDuration,
		ReconnectsTotal,
		SequenceGapsTotal,
		BootstrapFilesTotal,
		BootstrapFramesTotal,
		ReferenceRefreshes,
		ReferenceLocations,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
