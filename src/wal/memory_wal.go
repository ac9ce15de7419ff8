package wal

import (
	"math"
	"sync"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/record"
	"github.com/haorendashu/pagewal/src/types"
)

// MemoryWAL assigns LSNs without storing anything. It serves storages whose data never
// outlives the process: nothing can be read back, so every read-side call fails with
// ErrUnsupported instead of pretending the log is empty.
type MemoryWAL struct {
	mu      sync.Mutex
	last    types.LSN
	started bool
	closed  bool
}

// NewMemoryWAL creates an empty in-memory log.
func NewMemoryWAL() *MemoryWAL {
	return &MemoryWAL{}
}

// Log returns the next LSN. The record is dropped.
func (m *MemoryWAL) Log(r record.Record) (types.LSN, error) {
	if r == nil {
		return types.LSN{}, errors.NewFormatError("nil record")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return types.LSN{}, errors.ErrWALClosed
	}
	if m.last.Position == math.MaxInt32 {
		m.last = types.NewLSN(m.last.Segment+1, 0)
	}
	m.last.Position++
	m.started = true
	return m.last, nil
}

func (m *MemoryWAL) LogAtomicOperationStart(unit int64, rollbackSupported bool, metadata []byte) (types.LSN, error) {
	return m.Log(newStartRecord(unit, rollbackSupported, metadata))
}

func (m *MemoryWAL) LogAtomicOperationEnd(unit int64, rollback bool, metadata map[string]record.OperationMetadata) (types.LSN, error) {
	return m.Log(&record.AtomicUnitEnd{Unit: unit, Rollback: rollback, Metadata: metadata})
}

func (m *MemoryWAL) Begin() (types.LSN, error) {
	return types.LSN{}, errors.NewUnsupported("Begin")
}

func (m *MemoryWAL) BeginSegment(int64) (types.LSN, error) {
	return types.LSN{}, errors.NewUnsupported("BeginSegment")
}

// End returns the last assigned LSN.
func (m *MemoryWAL) End() (types.LSN, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return types.LSN{}, errors.NewSegmentNotFound(0)
	}
	return m.last, nil
}

func (m *MemoryWAL) Read(types.LSN, int) (Reader, error) {
	return nil, errors.NewUnsupported("Read")
}

func (m *MemoryWAL) Next(types.LSN, int) (Reader, error) {
	return nil, errors.NewUnsupported("Next")
}

func (m *MemoryWAL) FlushedLSN() (types.LSN, error) {
	return types.LSN{}, errors.NewUnsupported("FlushedLSN")
}

// Flush has nothing to write.
func (m *MemoryWAL) Flush() error { return nil }

func (m *MemoryWAL) CutTill(types.LSN) (bool, error) { return false, nil }

func (m *MemoryWAL) CutAllSegmentsSmallerThan(int64) (bool, error) { return false, nil }

func (m *MemoryWAL) AddCutTillLimit(types.LSN) {}

func (m *MemoryWAL) RemoveCutTillLimit(types.LSN) error { return nil }

// The in-memory log never grows, so listeners are never notified.
func (m *MemoryWAL) AddCheckpointListener(CheckpointListener)    {}
func (m *MemoryWAL) RemoveCheckpointListener(CheckpointListener) {}

// AddEventAt runs event immediately: nothing is ever pending.
func (m *MemoryWAL) AddEventAt(_ types.LSN, event func()) error {
	event()
	return nil
}

func (m *MemoryWAL) NonActiveSegments() []int64 { return nil }

// ActiveSegment returns -1: the in-memory log has no segments.
func (m *MemoryWAL) ActiveSegment() int64 { return -1 }

func (m *MemoryWAL) AppendNewSegment() error {
	return errors.NewUnsupported("AppendNewSegment")
}

func (m *MemoryWAL) MoveLSNAfter(types.LSN) error {
	return errors.NewUnsupported("MoveLSNAfter")
}

func (m *MemoryWAL) Size() int64 { return 0 }

func (m *MemoryWAL) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ WAL = (*MemoryWAL)(nil)
