// Package metrics counts observations per source and status for one report
// run. A cron invocation has no scrape endpoint, so the registry is written to
// a node_exporter textfile when the run ends.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"marketreport/internal/fetcher"
)

// Metrics holds the collectors of one registry
type Metrics struct {
	registry *prometheus.Registry

	Observations  *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
}

// New registers the report collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Observations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketreport_observations_total",
			Help: "Observations produced, by source kind and status",
		}, []string{"source", "status"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketreport_fetch_duration_seconds",
			Help:    "Time spent producing one observation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
	}
}

// ObserveFetch records one observation
func (m *Metrics) ObserveFetch(kind fetcher.SourceKind, status fetcher.Status, elapsed time.Duration) {
	m.Observations.WithLabelValues(string(kind), string(status)).Inc()
	m.FetchDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// Gatherer exposes the underlying registry
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the registry in text exposition format. The file is
// replaced atomically so a collector never reads a partial write.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
