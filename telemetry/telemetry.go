// Package telemetry counts fetch outcomes and exports them in the Prometheus text format.
//
// A CLI run is too short lived to be scraped, metrics are written to a file picked up by
// the node_exporter textfile collector instead.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch kinds used as label values.
const (
	KindRate   = "rate"
	KindBatch  = "batch"
	KindTicker = "ticker"
	KindLive   = "live"
)

// Metrics holds the counters of one run. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	attempts  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	fallbacks prometheus.Counter
	dropped   prometheus.Counter
	duration  *prometheus.GaugeVec
}

// New returns metrics registered on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxfolio_fetch_attempts_total",
				Help: "Total number of requests sent to the market data source",
			},
			[]string{"kind"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxfolio_fetch_failures_total",
				Help: "Total number of failed requests to the market data source",
			},
			[]string{"kind"},
		),
		fallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fxfolio_rate_fallbacks_total",
				Help: "Total number of dates converted at the fallback rate",
			},
		),
		dropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fxfolio_tickers_dropped_total",
				Help: "Total number of tickers excluded for lack of price data",
			},
		),
		duration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fxfolio_run_duration_seconds",
				Help: "Duration of the last run",
			},
			[]string{"command"},
		),
	}
}

func (m *Metrics) Attempt(kind string) {
	if m != nil {
		m.attempts.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Failure(kind string) {
	if m != nil {
		m.failures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Fallback() {
	if m != nil {
		m.fallbacks.Inc()
	}
}

func (m *Metrics) Dropped(n int) {
	if m != nil {
		m.dropped.Add(float64(n))
	}
}

// ObserveRun records how long command took.
func (m *Metrics) ObserveRun(command string, d time.Duration) {
	if m != nil {
		m.duration.WithLabelValues(command).Set(d.Seconds())
	}
}

// Gatherer returns the registry of m.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes every metric to path, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
