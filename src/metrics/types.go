package metrics

import (
	"sort"
	"sync"
	"time"
)

// Snapshot represents a point-in-time snapshot of all metrics.
type Snapshot struct {
	// Log metrics
	RecordsLogged int64
	LogErrors     int64
	BytesLogged   int64
	RecordsByKind map[string]int64 // record kind -> count

	// Flush metrics
	FlushesTotal    int64
	FlushBytesTotal int64
	FlushLatencyP50 float64
	FlushLatencyP95 float64
	FlushLatencyP99 float64

	// Segment metrics
	SegmentsCreated    int64
	SegmentsRemoved    int64
	CheckpointRequests int64
	WALSize            int64
	SegmentsCount      int64

	// Recovery metrics
	RecordsReplayed int64
	UnitsApplied    int64
	UnitsDiscarded  int64
	PagesSkipped    int64

	// Timestamp of snapshot
	Timestamp time.Time
}

// CircularBuffer stores a fixed number of values in FIFO order.
type CircularBuffer struct {
	mu     sync.RWMutex
	values []float64
	pos    int
	full   bool
}

// NewCircularBuffer creates a new circular buffer with given capacity.
func NewCircularBuffer(capacity int) *CircularBuffer {
	return &CircularBuffer{
		values: make([]float64, capacity),
	}
}

// Add appends a value to the buffer, overwriting the oldest one when full.
func (cb *CircularBuffer) Add(val float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.values[cb.pos] = val
	cb.pos++
	if cb.pos >= len(cb.values) {
		cb.pos = 0
		cb.full = true
	}
}

// GetValues returns a copy of the buffered values.
func (cb *CircularBuffer) GetValues() []float64 {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return append([]float64(nil), cb.valid()...)
}

// Reset drops all buffered values.
func (cb *CircularBuffer) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.pos = 0
	cb.full = false
}

// Percentile calculates the given percentile (0-100) from buffered values
// using the nearest-rank method.
func (cb *CircularBuffer) Percentile(p float64) float64 {
	cb.mu.RLock()
	values := append([]float64(nil), cb.valid()...)
	cb.mu.RUnlock()

	return calculatePercentile(values, p)
}

func (cb *CircularBuffer) valid() []float64 {
	if cb.full {
		return cb.values
	}
	return cb.values[:cb.pos]
}

func calculatePercentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)

	idx := int((p / 100.0) * float64(len(values)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
