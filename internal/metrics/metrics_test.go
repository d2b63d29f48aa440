package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// TestCollectorsRegistered verifies every collector is exposed by the default gatherer.
func TestCollectorsRegistered(t *testing.T) {
	t.Parallel()

	ResolutionsTotal.WithLabelValues("no_update").Add(0)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]struct{}, len(families))
	for _, f := range families {
		names[f.GetName()] = struct{}{}
	}

	for _, want := range []string{
		"swupdate_resolver_resolutions_total",
		"swupdate_catalog_entries",
		"swupdate_catalog_skipped_files",
		"swupdate_catalog_scan_duration_seconds",
		"swupdate_catalog_scan_errors_total",
	} {
		require.Contains(t, names, want)
	}
}
