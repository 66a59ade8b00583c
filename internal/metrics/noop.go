package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncReleaseCacheHit is a no-op.
func (n *NoopRecorder) IncReleaseCacheHit() {}

// IncReleaseCacheMiss is a no-op.
func (n *NoopRecorder) IncReleaseCacheMiss() {}

// IncEventIngested is a no-op.
func (n *NoopRecorder) IncEventIngested(status string) {}

// IncEventRejected is a no-op.
func (n *NoopRecorder) IncEventRejected(reason string) {}

// ObserveForwardDuration is a no-op.
func (n *NoopRecorder) ObserveForwardDuration(duration time.Duration) {}

// ObserveAggregationDuration is a no-op.
func (n *NoopRecorder) ObserveAggregationDuration(view string, duration time.Duration) {}

// ObserveAggregationRows is a no-op.
func (n *NoopRecorder) ObserveAggregationRows(view string, rows int) {}
