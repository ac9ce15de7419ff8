package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the core metrics collector.
// It records and aggregates metrics from the log, the page store and recovery.
type Collector struct {
	// Log metrics
	recordsLogged atomic.Int64
	logErrors     atomic.Int64
	bytesLogged   atomic.Int64

	// Per record kind counts
	kindCounts map[string]int64
	kindMu     sync.RWMutex

	// Flush metrics
	flushesTotal   atomic.Int64
	flushBytes     atomic.Int64
	flushLatencies *CircularBuffer

	// Segment metrics
	segmentsCreated    atomic.Int64
	segmentsRemoved    atomic.Int64
	checkpointRequests atomic.Int64
	walSize            atomic.Int64
	segmentsCount      atomic.Int64

	// Recovery metrics
	recordsReplayed atomic.Int64
	unitsApplied    atomic.Int64
	unitsDiscarded  atomic.Int64
	pagesSkipped    atomic.Int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		kindCounts:     make(map[string]int64),
		flushLatencies: NewCircularBuffer(1000),
	}
}

// RecordLog records one logged record of the given kind and its frame size.
func (c *Collector) RecordLog(kind string, bytes int64) {
	c.recordsLogged.Add(1)
	c.bytesLogged.Add(bytes)

	c.kindMu.Lock()
	c.kindCounts[kind]++
	c.kindMu.Unlock()
}

// RecordLogError records a failed log call.
func (c *Collector) RecordLogError() {
	c.logErrors.Add(1)
}

// RecordFlush records a flush with its latency and the bytes it made durable.
func (c *Collector) RecordFlush(latencyMs float64, bytes int64) {
	c.flushesTotal.Add(1)
	c.flushBytes.Add(bytes)
	c.flushLatencies.Add(latencyMs)
}

// RecordSegmentCreated records a new segment.
func (c *Collector) RecordSegmentCreated() {
	c.segmentsCreated.Add(1)
}

// RecordSegmentsRemoved records segments removed by a cut.
func (c *Collector) RecordSegmentsRemoved(n int) {
	c.segmentsRemoved.Add(int64(n))
}

// RecordCheckpointRequest records a checkpoint request sent to listeners.
func (c *Collector) RecordCheckpointRequest() {
	c.checkpointRequests.Add(1)
}

// UpdateWALStats updates the gauges describing the log on disk.
func (c *Collector) UpdateWALStats(sizeBytes int64, segments int64) {
	c.walSize.Store(sizeBytes)
	c.segmentsCount.Store(segments)
}

// RecordRecovery records the outcome of a recovery run.
func (c *Collector) RecordRecovery(replayed, applied, discarded, skippedPages int64) {
	c.recordsReplayed.Add(replayed)
	c.unitsApplied.Add(applied)
	c.unitsDiscarded.Add(discarded)
	c.pagesSkipped.Add(skippedPages)
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	snapshot := &Snapshot{
		RecordsLogged: c.recordsLogged.Load(),
		LogErrors:     c.logErrors.Load(),
		BytesLogged:   c.bytesLogged.Load(),

		FlushesTotal:    c.flushesTotal.Load(),
		FlushBytesTotal: c.flushBytes.Load(),
		FlushLatencyP50: c.flushLatencies.Percentile(50),
		FlushLatencyP95: c.flushLatencies.Percentile(95),
		FlushLatencyP99: c.flushLatencies.Percentile(99),

		SegmentsCreated:    c.segmentsCreated.Load(),
		SegmentsRemoved:    c.segmentsRemoved.Load(),
		CheckpointRequests: c.checkpointRequests.Load(),
		WALSize:            c.walSize.Load(),
		SegmentsCount:      c.segmentsCount.Load(),

		RecordsReplayed: c.recordsReplayed.Load(),
		UnitsApplied:    c.unitsApplied.Load(),
		UnitsDiscarded:  c.unitsDiscarded.Load(),
		PagesSkipped:    c.pagesSkipped.Load(),

		Timestamp: time.Now(),
	}

	c.kindMu.RLock()
	snapshot.RecordsByKind = make(map[string]int64, len(c.kindCounts))
	for kind, count := range c.kindCounts {
		snapshot.RecordsByKind[kind] = count
	}
	c.kindMu.RUnlock()

	return snapshot
}

// Reset clears all metrics.
func (c *Collector) Reset() {
	c.recordsLogged.Store(0)
	c.logErrors.Store(0)
	c.bytesLogged.Store(0)

	c.kindMu.Lock()
	c.kindCounts = make(map[string]int64)
	c.kindMu.Unlock()

	c.flushesTotal.Store(0)
	c.flushBytes.Store(0)
	c.flushLatencies.Reset()

	c.segmentsCreated.Store(0)
	c.segmentsRemoved.Store(0)
	c.checkpointRequests.Store(0)
	c.walSize.Store(0)
	c.segmentsCount.Store(0)

	c.recordsReplayed.Store(0)
	c.unitsApplied.Store(0)
	c.unitsDiscarded.Store(0)
	c.pagesSkipped.Store(0)
}
