package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "swupdate"

	resolverSubsystem = "resolver"
	catalogSubsystem  = "catalog"
)

//nolint:gochecknoglobals // Collectors are process-wide by nature.
var (
	// ResolutionsTotal counts update requests by outcome.
	ResolutionsTotal = MustRegisterCounterVec(namespace, resolverSubsystem, "resolutions_total",
		"Number of update requests by resolution outcome.", "outcome")

	// CatalogEntries is the number of entries in the most recent scan.
	CatalogEntries = MustRegisterGauge(namespace, catalogSubsystem, "entries",
		"Number of parseable image files in the most recent scan.")

	// CatalogSkippedFiles is the number of files left out of the most recent scan.
	CatalogSkippedFiles = MustRegisterGauge(namespace, catalogSubsystem, "skipped_files",
		"Number of files whose names did not match the filename layout in the most recent scan.")

	// CatalogScanDuration observes directory scan latency.
	CatalogScanDuration = MustRegisterHistogram(namespace, catalogSubsystem, "scan_duration_seconds",
		"Duration of images directory scans.", prometheus.ExponentialBuckets(0.0005, 2, 12))

	// CatalogScanErrorsTotal counts failed directory scans.
	CatalogScanErrorsTotal = MustRegisterCounter(namespace, catalogSubsystem, "scan_errors_total",
		"Number of images directory scans that failed.")
)

// MustRegisterCounterVec creates and registers a counter vector.
// Must be called from package initialization.
func MustRegisterCounterVec(namespace, component, name, help string, labelNames ...string) *prometheus.CounterVec {
	m := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
	}, labelNames)
	prometheus.MustRegister(m)

	return m
}

// MustRegisterCounter creates and registers a counter.
func MustRegisterCounter(namespace, component, name, help string) prometheus.Counter {
	m := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
	})
	prometheus.MustRegister(m)

	return m
}

// MustRegisterGauge creates and registers a gauge.
func MustRegisterGauge(namespace, component, name, help string) prometheus.Gauge {
	m := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
	})
	prometheus.MustRegister(m)

	return m
}

// MustRegisterHistogram creates and registers a histogram.
func MustRegisterHistogram(namespace, component, name, help string, buckets []float64) prometheus.Histogram {
	m := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: component,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
	prometheus.MustRegister(m)

	return m
}
