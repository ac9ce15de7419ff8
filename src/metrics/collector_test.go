package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectorRecordsLog(t *testing.T) {
	collector := NewCollector()

	collector.RecordLog("UpdatePage", 1024)
	collector.RecordLog("UpdatePage", 2048)
	collector.RecordLog("AtomicUnitEnd", 512)
	collector.RecordLogError()

	snapshot := collector.Snapshot()
	assert.Equal(t, int64(3), snapshot.RecordsLogged)
	assert.Equal(t, int64(3584), snapshot.BytesLogged)
	assert.Equal(t, int64(1), snapshot.LogErrors)
	assert.Equal(t, map[string]int64{"UpdatePage": 2, "AtomicUnitEnd": 1}, snapshot.RecordsByKind)
}

func TestCollectorFlushLatency(t *testing.T) {
	collector := NewCollector()

	for _, latency := range []float64{4, 1, 3, 2, 100} {
		collector.RecordFlush(latency, 10)
	}

	snapshot := collector.Snapshot()
	assert.Equal(t, int64(5), snapshot.FlushesTotal)
	assert.Equal(t, int64(50), snapshot.FlushBytesTotal)
	assert.Equal(t, 3.0, snapshot.FlushLatencyP50)
	assert.Equal(t, 4.0, snapshot.FlushLatencyP95)
}

func TestCollectorSegmentsAndRecovery(t *testing.T) {
	collector := NewCollector()

	collector.RecordSegmentCreated()
	collector.RecordSegmentCreated()
	collector.RecordSegmentsRemoved(1)
	collector.RecordCheckpointRequest()
	collector.UpdateWALStats(4096, 1)
	collector.RecordRecovery(10, 2, 1, 3)

	snapshot := collector.Snapshot()
	assert.Equal(t, int64(2), snapshot.SegmentsCreated)
	assert.Equal(t, int64(1), snapshot.SegmentsRemoved)
	assert.Equal(t, int64(1), snapshot.CheckpointRequests)
	assert.Equal(t, int64(4096), snapshot.WALSize)
	assert.Equal(t, int64(1), snapshot.SegmentsCount)
	assert.Equal(t, int64(10), snapshot.RecordsReplayed)
	assert.Equal(t, int64(2), snapshot.UnitsApplied)
	assert.Equal(t, int64(1), snapshot.UnitsDiscarded)
	assert.Equal(t, int64(3), snapshot.PagesSkipped)
}

func TestCollectorReset(t *testing.T) {
	collector := NewCollector()
	collector.RecordLog("Empty", 16)
	collector.RecordFlush(1, 16)
	collector.Reset()

	snapshot := collector.Snapshot()
	assert.Zero(t, snapshot.RecordsLogged)
	assert.Zero(t, snapshot.FlushesTotal)
	assert.Zero(t, snapshot.FlushLatencyP99)
	assert.Empty(t, snapshot.RecordsByKind)
}

func TestCollectorConcurrentAccess(t *testing.T) {
	collector := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.RecordLog("Metadata", 1)
				collector.RecordFlush(float64(j), 1)
				_ = collector.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(800), collector.Snapshot().RecordsLogged)
}

func TestCircularBufferWraps(t *testing.T) {
	cb := NewCircularBuffer(3)
	assert.Zero(t, cb.Percentile(50))

	for _, v := range []float64{1, 2, 3, 4} {
		cb.Add(v)
	}
	assert.ElementsMatch(t, []float64{4, 2, 3}, cb.GetValues())
	assert.Equal(t, 2.0, cb.Percentile(0))
	assert.Equal(t, 4.0, cb.Percentile(100))
}
