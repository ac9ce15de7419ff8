package wal

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/zhangyunhao116/skipmap"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/metrics"
	"github.com/haorendashu/pagewal/src/record"
	"github.com/haorendashu/pagewal/src/types"
)

// DiskWAL is the durable WAL engine. Records are framed into segment files named
// <name>.<id>.wal; an LSN is the segment id and the byte offset of the frame in that file.
// Frames are buffered in memory and written according to the sync mode.
type DiskWAL struct {
	cfg     Config
	codec   record.Codec
	logger  *slog.Logger
	metrics *metrics.Collector
	lock    *dirLock

	mu          sync.Mutex
	file        *os.File
	buffer      []byte
	segment     int64
	segmentSize int64 // bytes written to the active segment file
	segmentRecs int   // records assigned to the active segment
	segmentTime time.Time
	segments    []int64
	sizes       map[int64]int64 // sizes of completed segments
	lastLSN     types.LSN
	flushedLSN  types.LSN
	err         error // first write failure; the log refuses writes after it
	closed      bool

	// limitsMu is taken before mu when both are needed.
	limitsMu sync.Mutex
	limits   *skipmap.FuncMap[types.LSN, int]

	// events is mutated under mu so registration cannot race with the flushed LSN.
	events *skipmap.FuncMap[types.LSN, func()]

	listenersMu sync.RWMutex
	listeners   []CheckpointListener

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

func lsnLess(a, b types.LSN) bool {
	return a.Less(b)
}

// Open opens the log in cfg.Dir. Existing segments are checked and a torn tail frame in the
// last one is truncated. Records are always appended to a fresh segment, which starts with an
// Empty record so that Begin and End are defined as soon as Open returns.
func Open(cfg Config) (*DiskWAL, error) {
	cfg = cfg.withDefaults()
	if cfg.Dir == "" {
		return nil, errors.NewConfigError("WAL directory is required", nil)
	}
	if cfg.MaxSegmentSize > math.MaxInt32 {
		return nil, errors.NewConfigError(fmt.Sprintf("max segment size %d does not fit an LSN position", cfg.MaxSegmentSize), nil)
	}
	switch cfg.SyncMode {
	case SyncAlways, SyncBatch, SyncNever:
	default:
		return nil, errors.NewConfigError(fmt.Sprintf("unknown sync mode %q", cfg.SyncMode), nil)
	}

	codec, err := record.NewCodec(cfg.PageSize)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create WAL directory: %w", err)
	}

	lock, err := acquireDirLock(cfg.Dir, cfg.Name)
	if err != nil {
		return nil, err
	}

	w := &DiskWAL{
		cfg:     cfg,
		codec:   codec,
		logger:  cfg.Logger.With("component", "wal", "dir", cfg.Dir),
		metrics: cfg.Metrics,
		lock:    lock,
		buffer:  make([]byte, 0, cfg.BatchSizeBytes),
		sizes:   make(map[int64]int64),
		limits:  skipmap.NewFunc[types.LSN, int](lsnLess),
		events:  skipmap.NewFunc[types.LSN, func()](lsnLess),
	}

	if err := w.loadSegments(); err != nil {
		lock.release()
		return nil, err
	}

	next := int64(1)
	if len(w.segments) > 0 {
		next = w.segments[len(w.segments)-1] + 1
	}

	w.mu.Lock()
	err = w.startSegmentLocked(next)
	if err == nil {
		err = w.flushLocked()
	}
	w.mu.Unlock()
	if err != nil {
		if w.file != nil {
			w.file.Close()
		}
		lock.release()
		return nil, err
	}

	if cfg.SyncMode == SyncBatch {
		w.ticker = time.NewTicker(time.Duration(cfg.BatchIntervalMs) * time.Millisecond)
		w.done = make(chan struct{})
		w.wg.Add(1)
		go w.batchFlusher()
	}

	w.logger.Info("WAL opened",
		"first_segment", w.segments[0],
		"active_segment", w.segment,
		"end", w.lastLSN.String(),
		"sync_mode", cfg.SyncMode)
	return w, nil
}

// loadSegments validates the segments left by a previous run.
func (w *DiskWAL) loadSegments() error {
	segments, err := listSegments(w.cfg.Dir, w.cfg.Name)
	if err != nil {
		return fmt.Errorf("list WAL segments: %w", err)
	}

	for i, seg := range segments {
		last := i == len(segments)-1
		validEnd, frames, size, err := scanSegmentEnd(seg.path)
		if err != nil {
			if !last {
				return errors.NewWALError(fmt.Sprintf("segment %d is unreadable", seg.id), err)
			}
			// A crash while creating the last segment leaves a header-less file.
			w.logger.Warn("removing unreadable last segment", "segment", seg.id, "error", err)
			if err := os.Remove(seg.path); err != nil {
				return fmt.Errorf("remove segment %d: %w", seg.id, err)
			}
			continue
		}

		if validEnd < size {
			if !last {
				return errors.NewWALError(fmt.Sprintf("segment %d has an invalid frame at offset %d", seg.id, validEnd), nil)
			}
			w.logger.Warn("truncating torn WAL tail",
				"segment", seg.id,
				"valid_frames", frames,
				"offset", validEnd,
				"dropped_bytes", size-validEnd)
			if err := os.Truncate(seg.path, validEnd); err != nil {
				return fmt.Errorf("truncate segment %d: %w", seg.id, err)
			}
		}

		w.segments = append(w.segments, seg.id)
		w.sizes[seg.id] = validEnd
	}
	return nil
}

// startSegmentLocked closes the active segment and starts segment id.
func (w *DiskWAL) startSegmentLocked(id int64) error {
	if w.file != nil {
		if err := w.flushLocked(); err != nil {
			return err
		}
		if err := w.file.Close(); err != nil {
			return w.failLocked(fmt.Errorf("close segment %d: %w", w.segment, err))
		}
		w.sizes[w.segment] = w.segmentSize
		w.file = nil
	}

	path := segmentPath(w.cfg.Dir, w.cfg.Name, id)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0644)
	if err != nil {
		return w.failLocked(fmt.Errorf("create segment %d: %w", id, err))
	}
	if _, err := file.Write(encodeSegmentHeader(id)); err != nil {
		file.Close()
		return w.failLocked(fmt.Errorf("write segment %d header: %w", id, err))
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return w.failLocked(fmt.Errorf("sync segment %d header: %w", id, err))
	}
	if err := syncDir(w.cfg.Dir); err != nil {
		file.Close()
		return w.failLocked(err)
	}

	w.file = file
	w.segment = id
	w.segmentSize = segmentHeaderSize
	w.segmentRecs = 0
	w.segmentTime = time.Now()
	w.segments = append(w.segments, id)

	if w.metrics != nil {
		w.metrics.RecordSegmentCreated()
	}
	w.logger.Debug("started WAL segment", "segment", id)

	_, err = w.appendLocked(&record.Empty{})
	return err
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open WAL directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync WAL directory: %w", err)
	}
	return nil
}

func (w *DiskWAL) appendLocked(r record.Record) (types.LSN, error) {
	start := len(w.buffer)
	lsn := types.NewLSN(w.segment, int32(w.segmentSize+int64(start)))

	buf, err := appendFrame(w.buffer, w.codec, r)
	if err != nil {
		return types.LSN{}, err
	}
	w.buffer = buf
	w.segmentRecs++
	w.lastLSN = lsn

	if w.metrics != nil {
		w.metrics.RecordLog(r.Kind().String(), int64(len(buf)-start))
	}
	return lsn, nil
}

func (w *DiskWAL) failLocked(err error) error {
	if w.err == nil {
		w.err = err
		w.logger.Error("WAL write failed, refusing further writes", "segment", w.segment, "error", err)
	}
	return w.err
}

func (w *DiskWAL) checkLocked() error {
	if w.closed {
		return errors.ErrWALClosed
	}
	if w.err != nil {
		return fmt.Errorf("WAL failed earlier: %w", w.err)
	}
	return nil
}

// flushLocked writes and syncs the buffer, then advances the flushed LSN.
func (w *DiskWAL) flushLocked() error {
	if w.err != nil {
		return w.err
	}
	if len(w.buffer) == 0 {
		return nil
	}

	start := time.Now()
	n, err := w.file.Write(w.buffer)
	if err != nil {
		return w.failLocked(fmt.Errorf("write segment %d: %w", w.segment, err))
	}
	if err := w.file.Sync(); err != nil {
		return w.failLocked(fmt.Errorf("sync segment %d: %w", w.segment, err))
	}

	w.segmentSize += int64(n)
	w.buffer = w.buffer[:0]
	w.flushedLSN = w.lastLSN

	if w.metrics != nil {
		w.metrics.RecordFlush(float64(time.Since(start).Microseconds())/1000, int64(n))
		w.metrics.UpdateWALStats(w.sizeLocked(), int64(len(w.segments)))
	}
	return nil
}

// takeDueEventsLocked removes the events whose LSN is durable and returns their callbacks in LSN order.
func (w *DiskWAL) takeDueEventsLocked() []func() {
	var due []func()
	var keys []types.LSN
	w.events.Range(func(lsn types.LSN, event func()) bool {
		if w.flushedLSN.Less(lsn) {
			return false
		}
		keys = append(keys, lsn)
		due = append(due, event)
		return true
	})
	for _, lsn := range keys {
		w.events.Delete(lsn)
	}
	return due
}

func (w *DiskWAL) checkpointDueLocked() bool {
	if len(w.segments) <= 1 {
		return false
	}
	if w.cfg.KeepSingleSegment {
		return true
	}
	return w.cfg.WALSizeLimit > 0 && w.sizeLocked() > w.cfg.WALSizeLimit
}

// afterUnlock runs the work collected under mu: due events first, then checkpoint requests.
func (w *DiskWAL) afterUnlock(due []func(), checkpoint bool) {
	for _, event := range due {
		event()
	}
	if !checkpoint {
		return
	}

	w.listenersMu.RLock()
	listeners := append([]CheckpointListener(nil), w.listeners...)
	w.listenersMu.RUnlock()

	if len(listeners) == 0 {
		return
	}
	if w.metrics != nil {
		w.metrics.RecordCheckpointRequest()
	}
	for _, l := range listeners {
		l.RequestCheckpoint()
	}
}

// Log appends r to the active segment and returns its LSN.
func (w *DiskWAL) Log(r record.Record) (types.LSN, error) {
	if r == nil {
		return types.LSN{}, errors.NewFormatError("nil record")
	}
	frameSize := int64(frameOverhead + w.codec.Size(r))

	w.mu.Lock()
	if err := w.checkLocked(); err != nil {
		w.mu.Unlock()
		return types.LSN{}, err
	}

	if w.segmentRecs > 1 && (w.segmentSize+int64(len(w.buffer))+frameSize > w.cfg.MaxSegmentSize || w.segmentExpiredLocked()) {
		if err := w.startSegmentLocked(w.segment + 1); err != nil {
			w.mu.Unlock()
			w.recordLogError()
			return types.LSN{}, err
		}
	}

	lsn, err := w.appendLocked(r)
	if err != nil {
		w.mu.Unlock()
		w.recordLogError()
		return types.LSN{}, err
	}

	if w.cfg.SyncMode == SyncAlways || len(w.buffer) >= w.cfg.BatchSizeBytes {
		err = w.flushLocked()
	}
	due := w.takeDueEventsLocked()
	checkpoint := w.checkpointDueLocked()
	w.mu.Unlock()

	w.afterUnlock(due, checkpoint)
	if err != nil {
		w.recordLogError()
		return types.LSN{}, err
	}
	return lsn, nil
}

// segmentExpiredLocked reports whether the active segment is older than SegmentIntervalMs.
func (w *DiskWAL) segmentExpiredLocked() bool {
	if w.cfg.SegmentIntervalMs <= 0 {
		return false
	}
	return time.Since(w.segmentTime) >= time.Duration(w.cfg.SegmentIntervalMs)*time.Millisecond
}

func (w *DiskWAL) recordLogError() {
	if w.metrics != nil {
		w.metrics.RecordLogError()
	}
}

// LogAtomicOperationStart logs the start record of unit.
func (w *DiskWAL) LogAtomicOperationStart(unit int64, rollbackSupported bool, metadata []byte) (types.LSN, error) {
	return w.Log(newStartRecord(unit, rollbackSupported, metadata))
}

// LogAtomicOperationEnd logs the end record of unit.
func (w *DiskWAL) LogAtomicOperationEnd(unit int64, rollback bool, metadata map[string]record.OperationMetadata) (types.LSN, error) {
	return w.Log(&record.AtomicUnitEnd{Unit: unit, Rollback: rollback, Metadata: metadata})
}

func newStartRecord(unit int64, rollbackSupported bool, metadata []byte) record.Record {
	if metadata == nil {
		return &record.AtomicUnitStart{Unit: unit, RollbackSupported: rollbackSupported}
	}
	return &record.AtomicUnitStartMetadata{Unit: unit, RollbackSupported: rollbackSupported, Metadata: metadata}
}

// Flush writes and syncs every buffered record.
func (w *DiskWAL) Flush() error {
	w.mu.Lock()
	if err := w.checkLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	err := w.flushLocked()
	due := w.takeDueEventsLocked()
	checkpoint := w.checkpointDueLocked()
	w.mu.Unlock()

	w.afterUnlock(due, checkpoint)
	return err
}

func (w *DiskWAL) batchFlusher() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ticker.C:
			w.mu.Lock()
			if w.closed || w.err != nil {
				w.mu.Unlock()
				continue
			}
			if w.segmentRecs > 1 && w.segmentExpiredLocked() {
				// failures are kept in w.err and returned by the next Log
				_ = w.startSegmentLocked(w.segment + 1)
			}
			if len(w.buffer) == 0 {
				w.mu.Unlock()
				continue
			}
			_ = w.flushLocked()
			due := w.takeDueEventsLocked()
			checkpoint := w.checkpointDueLocked()
			w.mu.Unlock()

			w.afterUnlock(due, checkpoint)
		case <-w.done:
			return
		}
	}
}

// Begin returns the LSN of the first record of the oldest segment.
func (w *DiskWAL) Begin() (types.LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return types.LSN{}, errors.ErrWALClosed
	}
	return types.NewLSN(w.segments[0], segmentHeaderSize), nil
}

// BeginSegment returns the LSN of the first record of segment.
func (w *DiskWAL) BeginSegment(segment int64) (types.LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return types.LSN{}, errors.ErrWALClosed
	}
	if !w.holdsLocked(segment) {
		return types.LSN{}, errors.NewSegmentNotFound(segment)
	}
	return types.NewLSN(segment, segmentHeaderSize), nil
}

func (w *DiskWAL) holdsLocked(segment int64) bool {
	i := sort.Search(len(w.segments), func(i int) bool { return w.segments[i] >= segment })
	return i < len(w.segments) && w.segments[i] == segment
}

// segmentFrom returns the first held segment with an id at or above segment.
func (w *DiskWAL) segmentFrom(segment int64) (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := sort.Search(len(w.segments), func(i int) bool { return w.segments[i] >= segment })
	if i == len(w.segments) {
		return 0, false
	}
	return w.segments[i], true
}

// End returns the LSN of the newest record, flushed or not.
func (w *DiskWAL) End() (types.LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return types.LSN{}, errors.ErrWALClosed
	}
	return w.lastLSN, nil
}

// FlushedLSN returns the newest durable LSN.
func (w *DiskWAL) FlushedLSN() (types.LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return types.LSN{}, errors.ErrWALClosed
	}
	return w.flushedLSN, nil
}

// Read returns a cursor over the records at or after lsn. Buffered records are flushed first.
// The cursor keeps the log from cutting its segments until it is closed.
func (w *DiskWAL) Read(lsn types.LSN, limit int) (Reader, error) {
	return w.openCursor(lsn, limit, false)
}

// Next returns a cursor over the records strictly after lsn.
func (w *DiskWAL) Next(lsn types.LSN, limit int) (Reader, error) {
	return w.openCursor(lsn, limit, true)
}

func (w *DiskWAL) openCursor(from types.LSN, limit int, exclusive bool) (*Cursor, error) {
	w.AddCutTillLimit(from)

	w.mu.Lock()
	if err := w.checkLocked(); err != nil {
		w.mu.Unlock()
		w.RemoveCutTillLimit(from)
		return nil, err
	}
	var err error
	if w.flushedLSN.Less(w.lastLSN) {
		err = w.flushLocked()
	}
	upTo := w.flushedLSN
	due := w.takeDueEventsLocked()
	w.mu.Unlock()

	w.afterUnlock(due, false)
	if err != nil {
		w.RemoveCutTillLimit(from)
		return nil, err
	}

	return &Cursor{
		wal:       w,
		from:      from,
		exclusive: exclusive,
		limit:     limit,
		upTo:      upTo,
	}, nil
}

// AddCutTillLimit registers a retention limit at lsn.
func (w *DiskWAL) AddCutTillLimit(lsn types.LSN) {
	w.limitsMu.Lock()
	defer w.limitsMu.Unlock()

	count, _ := w.limits.Load(lsn)
	w.limits.Store(lsn, count+1)
}

// RemoveCutTillLimit drops one registration of the limit at lsn.
func (w *DiskWAL) RemoveCutTillLimit(lsn types.LSN) error {
	w.limitsMu.Lock()
	defer w.limitsMu.Unlock()

	count, ok := w.limits.Load(lsn)
	if !ok {
		return errors.NewCutTillLimitNotFound(lsn)
	}
	if count <= 1 {
		w.limits.Delete(lsn)
	} else {
		w.limits.Store(lsn, count-1)
	}
	return nil
}

func (w *DiskWAL) firstLimitLocked() (types.LSN, bool) {
	var first types.LSN
	found := false
	w.limits.Range(func(lsn types.LSN, _ int) bool {
		first, found = lsn, true
		return false
	})
	return first, found
}

// CutTill removes the segments that only hold records older than lsn's segment.
func (w *DiskWAL) CutTill(lsn types.LSN) (bool, error) {
	return w.CutAllSegmentsSmallerThan(lsn.Segment)
}

// CutAllSegmentsSmallerThan removes segments with ids below segment. The bound is lowered to the
// segment of the oldest cut-till limit, of the flushed LSN and of the active segment.
func (w *DiskWAL) CutAllSegmentsSmallerThan(segment int64) (bool, error) {
	w.limitsMu.Lock()
	defer w.limitsMu.Unlock()

	bound := segment
	if first, ok := w.firstLimitLocked(); ok && first.Segment < bound {
		bound = first.Segment
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkLocked(); err != nil {
		return false, err
	}
	if w.flushedLSN.Segment < bound {
		bound = w.flushedLSN.Segment
	}
	if w.segment < bound {
		bound = w.segment
	}

	removed := 0
	for len(w.segments) > 0 && w.segments[0] < bound {
		id := w.segments[0]
		if err := os.Remove(segmentPath(w.cfg.Dir, w.cfg.Name, id)); err != nil && !os.IsNotExist(err) {
			w.recordRemoved(removed)
			return removed > 0, fmt.Errorf("remove segment %d: %w", id, err)
		}
		w.segments = w.segments[1:]
		delete(w.sizes, id)
		removed++
		w.logger.Debug("removed WAL segment", "segment", id, "bound", bound)
	}
	w.recordRemoved(removed)
	return removed > 0, nil
}

func (w *DiskWAL) recordRemoved(n int) {
	if w.metrics != nil && n > 0 {
		w.metrics.RecordSegmentsRemoved(n)
		w.metrics.UpdateWALStats(w.sizeLocked(), int64(len(w.segments)))
	}
}

// AddCheckpointListener registers l. Registering the same listener twice has no effect.
func (w *DiskWAL) AddCheckpointListener(l CheckpointListener) {
	w.listenersMu.Lock()
	defer w.listenersMu.Unlock()

	for _, existing := range w.listeners {
		if existing == l {
			return
		}
	}
	w.listeners = append(w.listeners, l)
}

// RemoveCheckpointListener unregisters l.
func (w *DiskWAL) RemoveCheckpointListener(l CheckpointListener) {
	w.listenersMu.Lock()
	defer w.listenersMu.Unlock()

	for i, existing := range w.listeners {
		if existing == l {
			w.listeners = append(w.listeners[:i], w.listeners[i+1:]...)
			return
		}
	}
}

// AddEventAt runs event after the record at lsn is durable, immediately if it already is.
// Only one event may wait on a given LSN.
func (w *DiskWAL) AddEventAt(lsn types.LSN, event func()) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.ErrWALClosed
	}
	if !w.flushedLSN.Less(lsn) {
		w.mu.Unlock()
		event()
		return nil
	}
	if _, loaded := w.events.LoadOrStore(lsn, event); loaded {
		w.mu.Unlock()
		return errors.NewEventAlreadyScheduled(lsn)
	}
	w.mu.Unlock()
	return nil
}

// NonActiveSegments returns the ids of the completed segments.
func (w *DiskWAL) NonActiveSegments() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ids []int64
	for _, id := range w.segments {
		if id < w.segment {
			ids = append(ids, id)
		}
	}
	return ids
}

// ActiveSegment returns the id of the segment being appended to.
func (w *DiskWAL) ActiveSegment() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segment
}

// AppendNewSegment completes the active segment and starts the next one.
func (w *DiskWAL) AppendNewSegment() error {
	w.mu.Lock()
	if err := w.checkLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	err := w.startSegmentLocked(w.segment + 1)
	due := w.takeDueEventsLocked()
	checkpoint := w.checkpointDueLocked()
	w.mu.Unlock()

	w.afterUnlock(due, checkpoint)
	return err
}

// MoveLSNAfter starts a new segment when the active one is not already past lsn.
func (w *DiskWAL) MoveLSNAfter(lsn types.LSN) error {
	w.mu.Lock()
	if err := w.checkLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	var err error
	if lsn.Segment >= w.segment {
		err = w.startSegmentLocked(lsn.Segment + 1)
	}
	due := w.takeDueEventsLocked()
	w.mu.Unlock()

	w.afterUnlock(due, false)
	return err
}

// Size returns the bytes held by all segments, including buffered frames.
func (w *DiskWAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sizeLocked()
}

func (w *DiskWAL) sizeLocked() int64 {
	size := w.segmentSize + int64(len(w.buffer))
	for id, s := range w.sizes {
		if id != w.segment {
			size += s
		}
	}
	return size
}

// Close flushes buffered records, stops the batch flusher and releases the directory lock.
func (w *DiskWAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.ticker != nil {
		w.ticker.Stop()
		close(w.done)
	}

	err := w.flushLocked()
	due := w.takeDueEventsLocked()
	if w.file != nil {
		if cerr := w.file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close segment %d: %w", w.segment, cerr)
		}
		w.file = nil
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.afterUnlock(due, false)

	if lerr := w.lock.release(); lerr != nil && err == nil {
		err = lerr
	}
	if err != nil {
		return fmt.Errorf("close WAL: %w", err)
	}
	w.logger.Info("WAL closed", "end", w.lastLSN.String())
	return nil
}

// Delete closes the log and removes its segment files and lock file.
func (w *DiskWAL) Delete() error {
	closeErr := w.Close()

	w.mu.Lock()
	segments := append([]int64(nil), w.segments...)
	w.segments = nil
	w.mu.Unlock()

	for _, id := range segments {
		if err := os.Remove(segmentPath(w.cfg.Dir, w.cfg.Name, id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove segment %d: %w", id, err)
		}
	}
	if err := os.Remove(w.lock.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return closeErr
}

var _ WAL = (*DiskWAL)(nil)
