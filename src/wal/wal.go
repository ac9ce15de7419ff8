// Package wal implements the write-ahead log.
// Every page mutation is logged as a record before it is considered committed; the log
// assigns each record a strictly increasing LSN and can replay records forward from any
// LSN it still holds. Two engines satisfy the WAL contract: DiskWAL, which stores records
// in segment files, and MemoryWAL, which only assigns LSNs for transient storages.
package wal

import (
	"context"
	"log/slog"

	"github.com/haorendashu/pagewal/src/metrics"
	"github.com/haorendashu/pagewal/src/record"
	"github.com/haorendashu/pagewal/src/types"
)

// Entry is a record read back from the log together with the LSN it was assigned.
type Entry struct {
	LSN    types.LSN
	Record record.Record
}

// Reader is a lazy, forward-only sequence of entries.
type Reader interface {
	// Read returns the next entry, or io.EOF when the sequence or its limit is exhausted.
	Read(ctx context.Context) (*Entry, error)

	// Close releases the reader and the retention it holds on the log.
	Close() error
}

// CheckpointListener is notified when the log decides a checkpoint is advisable,
// for example because it grew past its size limit.
// Listeners are compared by identity, so implementations should be pointers.
type CheckpointListener interface {
	RequestCheckpoint()
}

// WAL is the contract shared by the durable and the in-memory engine.
type WAL interface {
	// Log appends r and returns its LSN. Safe for concurrent use; LSNs returned
	// to callers whose calls are ordered are ordered the same way.
	Log(r record.Record) (types.LSN, error)

	// LogAtomicOperationStart logs the start record of unit. A nil metadata logs the plain variant.
	LogAtomicOperationStart(unit int64, rollbackSupported bool, metadata []byte) (types.LSN, error)

	// LogAtomicOperationEnd logs the end record of unit.
	LogAtomicOperationEnd(unit int64, rollback bool, metadata map[string]record.OperationMetadata) (types.LSN, error)

	// Begin returns the LSN of the oldest record still held.
	Begin() (types.LSN, error)

	// BeginSegment returns the LSN of the first record of segment.
	BeginSegment(segment int64) (types.LSN, error)

	// End returns the LSN of the newest record, flushed or not.
	End() (types.LSN, error)

	// Read returns the records at or after lsn, at most limit of them when limit > 0.
	Read(lsn types.LSN, limit int) (Reader, error)

	// Next returns the records strictly after lsn, at most limit of them when limit > 0.
	Next(lsn types.LSN, limit int) (Reader, error)

	// FlushedLSN returns the highest LSN guaranteed to be on stable storage.
	FlushedLSN() (types.LSN, error)

	// Flush makes every logged record durable before returning.
	Flush() error

	// CutTill removes log space holding only records older than lsn.
	// It reports whether anything was removed.
	CutTill(lsn types.LSN) (bool, error)

	// CutAllSegmentsSmallerThan removes segments with ids below segment.
	CutAllSegmentsSmallerThan(segment int64) (bool, error)

	// AddCutTillLimit keeps records from lsn onward until the limit is removed.
	// Limits are counted: each add needs its own remove.
	AddCutTillLimit(lsn types.LSN)

	// RemoveCutTillLimit drops one registration of the limit at lsn.
	RemoveCutTillLimit(lsn types.LSN) error

	AddCheckpointListener(l CheckpointListener)
	RemoveCheckpointListener(l CheckpointListener)

	// AddEventAt runs event once every record up to lsn is durable.
	AddEventAt(lsn types.LSN, event func()) error

	// NonActiveSegments returns the ids of segments that are complete and durable.
	NonActiveSegments() []int64

	// ActiveSegment returns the id of the segment records are appended to.
	ActiveSegment() int64

	// AppendNewSegment closes the active segment and starts a new one.
	AppendNewSegment() error

	// MoveLSNAfter makes every LSN assigned from now on greater than lsn.
	MoveLSNAfter(lsn types.LSN) error

	// Size returns the number of bytes held by the log.
	Size() int64

	// Close flushes and closes the log.
	Close() error
}

// Sync modes for DiskWAL.
const (
	// SyncAlways makes every Log call durable before it returns.
	SyncAlways = "always"

	// SyncBatch flushes on a timer and whenever the buffer fills.
	SyncBatch = "batch"

	// SyncNever flushes only when the buffer fills, on explicit Flush and on Close.
	SyncNever = "never"
)

// Config holds WAL configuration parameters.
type Config struct {
	// Dir is the directory where segment files are stored.
	Dir string

	// Name is the segment file prefix: segments are named <Name>.<id>.wal.
	// Default: "wal"
	Name string

	// MaxSegmentSize is the size after which the active segment is closed and a new one started.
	// Must fit in an LSN position (int32). Default: 128 MB
	MaxSegmentSize int64

	// SyncMode is one of SyncAlways, SyncBatch or SyncNever. Default: SyncBatch
	SyncMode string

	// BatchIntervalMs is the interval between background flushes in SyncBatch mode.
	// Default: 100 ms
	BatchIntervalMs int

	// BatchSizeBytes is the buffer size that forces a flush.
	// Default: 4 MB
	BatchSizeBytes int

	// WALSizeLimit makes the log request a checkpoint once its total size exceeds it.
	// Zero disables the limit.
	WALSizeLimit int64

	// KeepSingleSegment makes the log request a checkpoint whenever it holds more than one segment.
	KeepSingleSegment bool

	// SegmentIntervalMs starts a new segment once the active one is this old and holds records,
	// so that a slow log still produces segments CutTill can remove. Zero disables it.
	SegmentIntervalMs int

	// PageSize is the page size of UpdatePage records. Default: 4096
	PageSize int

	// Logger receives operational logs. Default: slog.Default()
	Logger *slog.Logger

	// Metrics, when set, receives log, flush and segment counters.
	Metrics *metrics.Collector
}

const (
	defaultName           = "wal"
	defaultMaxSegmentSize = 128 * 1024 * 1024
	defaultBatchInterval  = 100
	defaultBatchSize      = 4 * 1024 * 1024
	defaultPageSize       = 4096
)

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.MaxSegmentSize <= 0 {
		c.MaxSegmentSize = defaultMaxSegmentSize
	}
	if c.SyncMode == "" {
		c.SyncMode = SyncBatch
	}
	if c.BatchIntervalMs <= 0 {
		c.BatchIntervalMs = defaultBatchInterval
	}
	if c.BatchSizeBytes <= 0 {
		c.BatchSizeBytes = defaultBatchSize
	}
	if c.PageSize == 0 {
		c.PageSize = defaultPageSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
