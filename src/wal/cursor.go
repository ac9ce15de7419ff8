package wal

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/types"
)

// Cursor reads DiskWAL records in LSN order. It only yields records that were durable when it
// was created and holds a cut-till limit at its start LSN until Close.
// A Cursor is not safe for concurrent use.
type Cursor struct {
	wal       *DiskWAL
	from      types.LSN
	exclusive bool
	limit     int
	upTo      types.LSN

	returned int
	segment  int64
	file     *os.File
	pos      int64
	done     bool
	closed   bool
}

// Read returns the next entry, or io.EOF once the durable records or the limit are exhausted.
func (c *Cursor) Read(ctx context.Context) (*Entry, error) {
	if c.closed {
		return nil, errors.ErrWALClosed
	}
	if c.done || (c.limit > 0 && c.returned >= c.limit) {
		return nil, io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if c.file == nil {
			if err := c.openNextSegment(); err != nil {
				if err == io.EOF {
					c.done = true
				}
				return nil, err
			}
		}

		lsn := types.NewLSN(c.segment, int32(c.pos))
		if c.upTo.Less(lsn) {
			c.done = true
			c.closeFile()
			return nil, io.EOF
		}

		fr, err := readFrameAt(c.file, c.pos)
		if err == io.EOF {
			c.closeFile()
			continue
		}
		if err == errTornFrame {
			return nil, errors.NewWALError(fmt.Sprintf("invalid frame at %s", lsn), nil)
		}
		if err != nil {
			return nil, err
		}
		c.pos += int64(fr.size)

		if lsn.Less(c.from) || (c.exclusive && lsn == c.from) {
			continue
		}

		rec, err := c.wal.codec.Unmarshal(fr.kind, fr.payload)
		if err != nil {
			return nil, fmt.Errorf("decode record at %s: %w", lsn, err)
		}
		c.returned++
		return &Entry{LSN: lsn, Record: rec}, nil
	}
}

// openNextSegment opens the segment after the current one. The first segment opened is the one
// holding the start LSN, positioned directly at it when a valid frame starts there.
func (c *Cursor) openNextSegment() error {
	want := c.from.Segment
	if c.segment != 0 {
		want = c.segment + 1
	}

	id, ok := c.wal.segmentFrom(want)
	if !ok || id > c.upTo.Segment {
		return io.EOF
	}

	file, err := os.Open(segmentPath(c.wal.cfg.Dir, c.wal.cfg.Name, id))
	if err != nil {
		return fmt.Errorf("open segment %d: %w", id, err)
	}

	c.file = file
	c.segment = id
	c.pos = segmentHeaderSize

	if id == c.from.Segment && int64(c.from.Position) > segmentHeaderSize {
		if _, err := readFrameAt(file, int64(c.from.Position)); err == nil {
			c.pos = int64(c.from.Position)
		}
	}
	return nil
}

func (c *Cursor) closeFile() {
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
}

// Close releases the segment file and the cursor's cut-till limit.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeFile()
	return c.wal.RemoveCutTillLimit(c.from)
}
