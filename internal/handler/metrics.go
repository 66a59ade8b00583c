package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/tracklink/tracklink/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "tracklink_release_cache_hits_total %d\n", snap.ReleaseCacheHits)
	writeMetric(w, "tracklink_release_cache_misses_total %d\n", snap.ReleaseCacheMisses)

	writeLabeledCounts(w, "tracklink_events_ingested_total", "status", snap.IngestedByStatus)
	writeLabeledCounts(w, "tracklink_events_rejected_total", "reason", snap.RejectedByReason)

	writeMetric(w, "tracklink_forward_duration_seconds_count %d\n", snap.ForwardDurationCount)
	writeMetric(w, "tracklink_forward_duration_seconds_sum %.6f\n", float64(snap.ForwardDurationTotalNs)/1e9)

	writeLabeledCounts(w, "tracklink_aggregations_total", "view", snap.AggregationDurationCount)
	writeLabeledCounts(w, "tracklink_aggregation_rows_total", "view", snap.AggregationRowsTotal)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// writeLabeledCounts emits one sample per label value in stable order.
func writeLabeledCounts(w http.ResponseWriter, name, label string, counts map[string]uint64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, counts[k])
	}
}
