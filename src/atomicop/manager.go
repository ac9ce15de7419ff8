// Package atomicop groups page mutations into atomic units.
//
// An operation logs its start record when it begins, collects page changes in
// memory, and at End logs its body records followed by the end record. Only once
// the log is flushed are the changes applied to the page store, each page stamped
// with the LSN of its UpdatePage record.
//
// Commits are serialized. A page changed by another operation after it was loaded
// fails the later commit with ErrPageConflict; that unit is logged as rolled back.
package atomicop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/haorendashu/pagewal/src/pagestore"
	"github.com/haorendashu/pagewal/src/types"
	"github.com/haorendashu/pagewal/src/wal"
)

// Options configures a Manager.
type Options struct {
	// FirstUnit is the id given to the first operation. Zero means 1.
	FirstUnit int64

	Logger *slog.Logger
}

// Manager starts and ends atomic operations over one log and one page store.
type Manager struct {
	wal    wal.WAL
	store  pagestore.Store
	units  atomic.Int64
	logger *slog.Logger

	commitMu sync.Mutex
}

// NewManager creates a manager logging to w and applying to store.
func NewManager(w wal.WAL, store pagestore.Store, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	first := opts.FirstUnit
	if first <= 0 {
		first = 1
	}

	m := &Manager{
		wal:    w,
		store:  store,
		logger: logger.With("component", "atomicop"),
	}
	m.units.Store(first - 1)
	return m
}

// Start logs the start record of a new unit and returns its operation.
func (m *Manager) Start(ctx context.Context, rollbackSupported bool, metadata []byte) (*Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unit := m.units.Add(1)
	lsn, err := m.wal.LogAtomicOperationStart(unit, rollbackSupported, metadata)
	if err != nil {
		return nil, fmt.Errorf("start atomic unit %d: %w", unit, err)
	}

	return &Operation{
		manager:           m,
		unit:              unit,
		startLSN:          lsn,
		rollbackSupported: rollbackSupported,
	}, nil
}

// End completes op and returns the LSN of its end record.
//
// A committed operation logs FileDeleted, FileCreated and FileTruncated records,
// one UpdatePage record per changed page and the end record, then applies the
// changes to the store once the log is durable. A rolled back operation logs only
// the end record.
func (m *Manager) End(ctx context.Context, op *Operation) (types.LSN, error) {
	op.mu.Lock()
	defer op.mu.Unlock()

	if err := op.checkLocked(); err != nil {
		return types.LSN{}, err
	}
	op.completed = true

	if op.rollback {
		lsn, err := m.wal.LogAtomicOperationEnd(op.unit, true, op.metadataLocked())
		if err != nil {
			return types.LSN{}, fmt.Errorf("roll back atomic unit %d: %w", op.unit, err)
		}
		m.logger.Debug("atomic unit rolled back", "unit", op.unit, "lsn", lsn)
		return lsn, nil
	}

	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	if err := op.verifyLocked(ctx); err != nil {
		if _, endErr := m.wal.LogAtomicOperationEnd(op.unit, true, op.metadataLocked()); endErr != nil {
			m.logger.Error("failed to close conflicting atomic unit", "unit", op.unit, "error", endErr)
		}
		return types.LSN{}, err
	}

	lsns, err := op.logLocked()
	if err != nil {
		return types.LSN{}, fmt.Errorf("log atomic unit %d: %w", op.unit, err)
	}
	end, err := m.wal.LogAtomicOperationEnd(op.unit, false, op.metadataLocked())
	if err != nil {
		return types.LSN{}, fmt.Errorf("end atomic unit %d: %w", op.unit, err)
	}
	if err := m.wal.Flush(); err != nil {
		return types.LSN{}, fmt.Errorf("flush atomic unit %d: %w", op.unit, err)
	}

	if err := op.applyLocked(ctx, lsns); err != nil {
		return end, fmt.Errorf("apply atomic unit %d: %w", op.unit, err)
	}
	m.logger.Debug("atomic unit committed", "unit", op.unit, "pages", len(lsns), "lsn", end)
	return end, nil
}

// LastUnit returns the id of the most recently started unit.
func (m *Manager) LastUnit() int64 {
	return m.units.Load()
}
