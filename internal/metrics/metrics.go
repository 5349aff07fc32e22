// Package metrics provides Prometheus instrumentation for the retrieval engine.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rallylog"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds every collector the engine reports.
type Metrics struct {
	cacheLookups   *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	scannedRecords prometheus.Gauge
	parseFailures  prometheus.Counter
	embedRequests  *prometheus.CounterVec
	embedDuration  *prometheus.HistogramVec
	vectorOps      *prometheus.CounterVec
	queries        *prometheus.CounterVec
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// New registers the engine collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: result (hit, miss)
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Lexical cache lookups by result",
		}, []string{"result"}),
		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "scan_duration_seconds",
			Help:      "Duration of full record scans in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		scannedRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "records",
			Help:      "Number of records returned by the last full scan",
		}),
		parseFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "parse_failures_total",
			Help:      "Malformed record files skipped while parsing",
		}),
		// Labels: task (document, query), outcome (success, error)
		embedRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding requests by task mode and outcome",
		}, []string{"task", "outcome"}),
		embedDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "request_duration_seconds",
			Help:      "Embedding request latency including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"task"}),
		// Labels: op (add, query, get, delete, count, clear), outcome
		vectorOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vectorindex",
			Name:      "operations_total",
			Help:      "Vector index operations by kind and outcome",
		}, []string{"op", "outcome"}),
		// Labels: operation (similar, recent, related, sensation), source (vector, lexical, none)
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hybrid",
			Name:      "queries_total",
			Help:      "Hybrid façade queries by operation and answering source",
		}, []string{"operation", "source"}),
	}
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ScanCompleted records a finished full scan.
func (m *Metrics) ScanCompleted(d time.Duration, records int) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(d.Seconds())
	m.scannedRecords.Set(float64(records))
}

// ParseFailed counts one skipped malformed file.
func (m *Metrics) ParseFailed() {
	if m == nil {
		return
	}
	m.parseFailures.Inc()
}

// Embedded records one embedding request.
func (m *Metrics) Embedded(task string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.embedRequests.WithLabelValues(task, outcome(err)).Inc()
	m.embedDuration.WithLabelValues(task).Observe(d.Seconds())
}

// VectorOp records one vector index operation.
func (m *Metrics) VectorOp(op string, err error) {
	if m == nil {
		return
	}
	m.vectorOps.WithLabelValues(op, outcome(err)).Inc()
}

// Query records which retrieval path answered a façade call.
func (m *Metrics) Query(operation, source string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(operation, source).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
