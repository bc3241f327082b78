package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bainbridge_now"

const (
	FailureFetch  = "fetch"
	FailureLayout = "layout"
	FailureInsert = "insert"
	FailureNotify = "notify"
)

type Config struct {
	// TextfilePath is where a batch run writes its metrics for the node exporter
	// textfile collector. Empty disables writing.
	TextfilePath string
}

// Metrics holds the ingestion counters on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	fetched     *prometheus.CounterVec
	stored      *prometheus.CounterVec
	failures    *prometheus.CounterVec
	runDuration prometheus.Summary
	lastRun     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.fetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_fetched_total",
		Help:      "Candidate events returned by a source",
	}, []string{"source"})
	m.stored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_stored_total",
		Help:      "Events written to the store by source and category",
	}, []string{"source", "event_type"})
	m.failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "failures_total",
		Help:      "Ingestion failures by source and kind",
	}, []string{"source", "kind"})
	m.runDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: namespace,
		Name:      "ingest_duration_seconds",
		Help:      "Time spent in one ingestion run",
	})
	m.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_ingest_timestamp_seconds",
		Help:      "Unix timestamp of the last finished ingestion run",
	})
	m.registry.MustRegister(m.fetched, m.stored, m.failures, m.runDuration, m.lastRun)
	return m
}

// WithProcessCollectors adds Go runtime and process metrics, used by the long running server.
func (m *Metrics) WithProcessCollectors() *Metrics {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Fetched(source string, n int) {
	m.fetched.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) Stored(source, eventType string) {
	m.stored.WithLabelValues(source, eventType).Inc()
}

func (m *Metrics) Failed(source, kind string) {
	m.failures.WithLabelValues(source, kind).Inc()
}

func (m *Metrics) RunFinished(started, finished time.Time) {
	m.runDuration.Observe(finished.Sub(started).Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the current values in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
