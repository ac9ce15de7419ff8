// Package recovery implements crash recovery from the WAL.
// After a crash or unclean shutdown, the recovery pass reads the log from its first
// record, groups body records by atomic unit and redoes the units that committed.
// Rolled back units and units with no end record are discarded.
package recovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/metrics"
	"github.com/haorendashu/pagewal/src/pagestore"
	"github.com/haorendashu/pagewal/src/record"
	"github.com/haorendashu/pagewal/src/types"
	"github.com/haorendashu/pagewal/src/wal"
)

// Replayer receives the records recovery does not apply to pages itself.
type Replayer interface {
	// OnHighLevelChange is called for each client transaction of a committed unit, in LSN order.
	OnHighLevelChange(ctx context.Context, lsn types.LSN, change *record.HighLevelTransactionChange) error

	// OnMetadata is called for each metadata record, in LSN order.
	OnMetadata(ctx context.Context, lsn types.LSN, meta *record.Metadata) error
}

// Options configures a Manager.
type Options struct {
	Replayer Replayer
	Metrics  *metrics.Collector
	Logger   *slog.Logger
}

// State is the result of a recovery run.
type State struct {
	// LastLSN is the LSN of the last record read.
	LastLSN types.LSN

	// RecordsRead is the number of records read from the log.
	RecordsRead int64

	// UnitsCommitted is the number of units whose records were redone.
	UnitsCommitted int64

	// UnitsRolledBack is the number of units ended with rollback.
	UnitsRolledBack int64

	// UnitsIncomplete is the number of units with no end record.
	UnitsIncomplete int64

	// RecordsApplied is the number of body records redone.
	RecordsApplied int64

	// RecordsDiscarded counts body records of rolled back, incomplete or orphan units.
	RecordsDiscarded int64

	// PagesSkipped counts page updates already present in the store.
	PagesSkipped int64

	// MaxUnit is the highest atomic unit id seen, so new units can continue after it.
	MaxUnit int64

	// Warnings describes anomalies that did not stop recovery.
	Warnings []string
}

type openUnit struct {
	start   types.LSN
	entries []*wal.Entry
}

// Manager replays a log into a page store.
type Manager struct {
	wal    wal.WAL
	store  pagestore.Store
	opts   Options
	logger *slog.Logger
}

// NewManager creates a recovery manager for w and store.
func NewManager(w wal.WAL, store pagestore.Store, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		wal:    w,
		store:  store,
		opts:   opts,
		logger: logger.With("component", "recovery"),
	}
}

func (m *Manager) warn(state *State, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	state.Warnings = append(state.Warnings, msg)
	m.logger.Warn(msg)
}

// Recover redoes every committed unit found in the log and flushes the store.
// A log that cannot be read back, such as the in-memory one, yields an empty state.
func (m *Manager) Recover(ctx context.Context) (*State, error) {
	state := &State{}

	begin, err := m.wal.Begin()
	if errors.IsUnsupported(err) {
		return state, nil
	}
	if err != nil {
		return nil, errors.NewRecoveryError("find first record", err)
	}

	reader, err := m.wal.Read(begin, 0)
	if err != nil {
		return nil, errors.NewRecoveryError("open log reader", err)
	}
	defer reader.Close()

	units := make(map[int64]*openUnit)
	for {
		entry, err := reader.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return state, errors.NewRecoveryError(fmt.Sprintf("read log after %s", state.LastLSN), err)
		}

		state.RecordsRead++
		state.LastLSN = entry.LSN
		if u, ok := entry.Record.(record.UnitRecord); ok && u.UnitID() > state.MaxUnit {
			state.MaxUnit = u.UnitID()
		}

		if err := m.dispatch(ctx, state, units, entry); err != nil {
			return state, err
		}
	}

	for _, id := range sortedUnits(units) {
		u := units[id]
		state.UnitsIncomplete++
		state.RecordsDiscarded += int64(len(u.entries))
		m.logger.Debug("discarding incomplete unit", "unit", id, "start", u.start, "records", len(u.entries))
	}

	if err := m.store.Flush(ctx); err != nil {
		return state, errors.NewRecoveryError("flush page store", err)
	}

	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordRecovery(state.RecordsRead, state.UnitsCommitted,
			state.UnitsRolledBack+state.UnitsIncomplete, state.PagesSkipped)
	}
	m.logger.Info("recovery completed",
		"records", state.RecordsRead,
		"committed", state.UnitsCommitted,
		"rolled_back", state.UnitsRolledBack,
		"incomplete", state.UnitsIncomplete,
		"applied", state.RecordsApplied,
		"skipped_pages", state.PagesSkipped,
		"last_lsn", state.LastLSN)

	return state, nil
}

func (m *Manager) dispatch(ctx context.Context, state *State, units map[int64]*openUnit, entry *wal.Entry) error {
	switch r := entry.Record.(type) {
	case *record.AtomicUnitStart, *record.AtomicUnitStartMetadata:
		unit := r.(record.UnitRecord).UnitID()
		if prev, ok := units[unit]; ok {
			m.warn(state, "atomic unit %d started again at %s, discarding %d records", unit, entry.LSN, len(prev.entries))
			state.RecordsDiscarded += int64(len(prev.entries))
		}
		units[unit] = &openUnit{start: entry.LSN}

	case *record.AtomicUnitEnd:
		u, ok := units[r.Unit]
		if !ok {
			m.warn(state, "end record of unknown atomic unit %d at %s", r.Unit, entry.LSN)
			return nil
		}
		delete(units, r.Unit)

		if r.Rollback {
			state.UnitsRolledBack++
			state.RecordsDiscarded += int64(len(u.entries))
			return nil
		}
		if err := m.applyUnit(ctx, state, u); err != nil {
			return errors.NewRecoveryError(fmt.Sprintf("redo atomic unit %d", r.Unit), err)
		}
		state.UnitsCommitted++

	case *record.Metadata:
		if m.opts.Replayer != nil {
			if err := m.opts.Replayer.OnMetadata(ctx, entry.LSN, r); err != nil {
				return errors.NewRecoveryError(fmt.Sprintf("replay metadata at %s", entry.LSN), err)
			}
		}

	case *record.Empty:

	case record.UnitRecord:
		u, ok := units[r.UnitID()]
		if !ok {
			m.warn(state, "%s record at %s belongs to no open atomic unit %d", r.Kind(), entry.LSN, r.UnitID())
			state.RecordsDiscarded++
			return nil
		}
		u.entries = append(u.entries, entry)

	default:
		return errors.NewRecoveryError(fmt.Sprintf("unexpected %s record at %s", r.Kind(), entry.LSN), nil)
	}
	return nil
}

func (m *Manager) applyUnit(ctx context.Context, state *State, u *openUnit) error {
	for _, entry := range u.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.apply(ctx, state, entry); err != nil {
			return err
		}
		state.RecordsApplied++
	}
	return nil
}

func (m *Manager) apply(ctx context.Context, state *State, entry *wal.Entry) error {
	switch r := entry.Record.(type) {
	case *record.FileCreated:
		err := m.store.CreateFile(ctx, r.FileName, r.FileID)
		if err != nil && !errors.IsFileAlreadyExists(err) {
			return err
		}

	case *record.FileDeleted:
		err := m.store.DeleteFile(ctx, r.FileID)
		if err != nil && !errors.IsFileNotFound(err) {
			return err
		}

	case *record.FileTruncated:
		err := m.store.TruncateFile(ctx, r.FileID)
		if err != nil && !errors.IsFileNotFound(err) {
			return err
		}

	case *record.UpdatePage:
		return m.redoPage(ctx, state, entry.LSN, r)

	case *record.HighLevelTransactionChange:
		if m.opts.Replayer != nil {
			return m.opts.Replayer.OnHighLevelChange(ctx, entry.LSN, r)
		}
	}
	return nil
}

// redoPage applies an update unless the stored page already holds a newer image.
func (m *Manager) redoPage(ctx context.Context, state *State, lsn types.LSN, r *record.UpdatePage) error {
	page, err := m.store.LoadPage(ctx, r.FileID, r.PageIndex)
	switch {
	case err == nil:
	case errors.IsPageNotFound(err):
		page = &pagestore.Page{Data: make([]byte, m.store.PageSize())}
	case errors.IsFileNotFound(err):
		m.warn(state, "page update at %s targets missing file %d", lsn, r.FileID)
		state.PagesSkipped++
		return nil
	default:
		return err
	}

	if r.InitialLSN.Less(page.LSN) {
		state.PagesSkipped++
		return nil
	}
	if r.InitialLSN != page.LSN {
		m.warn(state, "page LSN gap at %s: file %d page %d holds %s, update expects %s",
			lsn, r.FileID, r.PageIndex, page.LSN, r.InitialLSN)
	}

	r.Changes.Apply(page.Data)
	page.LSN = lsn
	return m.store.StorePage(ctx, r.FileID, r.PageIndex, page)
}

func sortedUnits(units map[int64]*openUnit) []int64 {
	ids := make([]int64, 0, len(units))
	for id := range units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
