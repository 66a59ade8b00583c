// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Release config cache metrics
	IncReleaseCacheHit()
	IncReleaseCacheMiss()

	// Ingestion pipeline metrics
	IncEventIngested(status string) // terminal forward status
	IncEventRejected(reason string) // pre-persist rejections (400/401)
	ObserveForwardDuration(duration time.Duration)

	// Analytics aggregation metrics
	ObserveAggregationDuration(view string, duration time.Duration)
	ObserveAggregationRows(view string, rows int)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
