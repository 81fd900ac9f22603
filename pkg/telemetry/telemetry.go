// Package telemetry exposes Prometheus counters for scan activity.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the scanner's instrumentation. Create one per process
// with New and share it across orchestrators.
type Metrics struct {
	ScansTotal    *prometheus.CounterVec
	FindingsTotal *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec
	ScanDuration  prometheus.Histogram
	PagesCrawled  prometheus.Counter
}

// New registers the metric set on the given registerer. Passing nil
// uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defendx",
			Name:      "scans_total",
			Help:      "Scans by terminal state.",
		}, []string{"state"}),
		FindingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defendx",
			Name:      "findings_total",
			Help:      "Findings reported, by severity.",
		}, []string{"severity"}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defendx",
			Name:      "fetch_errors_total",
			Help:      "Failed page fetches, by error kind.",
		}, []string{"kind"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "defendx",
			Name:      "scan_duration_seconds",
			Help:      "Wall-clock scan duration.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		PagesCrawled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "defendx",
			Name:      "pages_crawled_total",
			Help:      "Pages fetched during crawls.",
		}),
	}
}
