package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ReleaseCacheHits   uint64
	ReleaseCacheMisses uint64

	IngestedByStatus map[string]uint64
	RejectedByReason map[string]uint64

	ForwardDurationCount   uint64
	ForwardDurationTotalNs int64

	AggregationDurationCount map[string]uint64
	AggregationRowsTotal     map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	releaseCacheHits   uint64
	releaseCacheMisses uint64

	forwardDurationCount   uint64
	forwardDurationTotalNs int64

	mu                       sync.Mutex
	ingestedByStatus         map[string]uint64
	rejectedByReason         map[string]uint64
	aggregationDurationCount map[string]uint64
	aggregationRowsTotal     map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		ingestedByStatus:         make(map[string]uint64),
		rejectedByReason:         make(map[string]uint64),
		aggregationDurationCount: make(map[string]uint64),
		aggregationRowsTotal:     make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		ReleaseCacheHits:         atomic.LoadUint64(&m.releaseCacheHits),
		ReleaseCacheMisses:       atomic.LoadUint64(&m.releaseCacheMisses),
		IngestedByStatus:         copyCounts(m.ingestedByStatus),
		RejectedByReason:         copyCounts(m.rejectedByReason),
		ForwardDurationCount:     atomic.LoadUint64(&m.forwardDurationCount),
		ForwardDurationTotalNs:   atomic.LoadInt64(&m.forwardDurationTotalNs),
		AggregationDurationCount: copyCounts(m.aggregationDurationCount),
		AggregationRowsTotal:     copyCounts(m.aggregationRowsTotal),
	}
}

// IncReleaseCacheHit increments the release cache hit counter.
func (m *InMemoryRecorder) IncReleaseCacheHit() {
	atomic.AddUint64(&m.releaseCacheHits, 1)
}

// IncReleaseCacheMiss increments the release cache miss counter.
func (m *InMemoryRecorder) IncReleaseCacheMiss() {
	atomic.AddUint64(&m.releaseCacheMisses, 1)
}

// IncEventIngested counts one ingested event by terminal forward status.
func (m *InMemoryRecorder) IncEventIngested(status string) {
	m.mu.Lock()
	m.ingestedByStatus[status]++
	m.mu.Unlock()
}

// IncEventRejected counts one rejected track request by reason.
func (m *InMemoryRecorder) IncEventRejected(reason string) {
	m.mu.Lock()
	m.rejectedByReason[reason]++
	m.mu.Unlock()
}

// ObserveForwardDuration records one ads-API forward duration.
func (m *InMemoryRecorder) ObserveForwardDuration(duration time.Duration) {
	atomic.AddUint64(&m.forwardDurationCount, 1)
	atomic.AddInt64(&m.forwardDurationTotalNs, duration.Nanoseconds())
}

// ObserveAggregationDuration records one analytics aggregation duration.
func (m *InMemoryRecorder) ObserveAggregationDuration(view string, duration time.Duration) {
	m.mu.Lock()
	m.aggregationDurationCount[view]++
	m.mu.Unlock()
}

// ObserveAggregationRows records the rows scanned by one aggregation.
func (m *InMemoryRecorder) ObserveAggregationRows(view string, rows int) {
	m.mu.Lock()
	m.aggregationRowsTotal[view] += uint64(rows)
	m.mu.Unlock()
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
