// Package types defines the value types shared by the log, the page store and recovery.
package types

import (
	"encoding/binary"
	"fmt"
	"io"
)

// LSNSize is the wire size of an LSN: segment(8) | position(4).
const LSNSize = 12

// LSN is a log sequence number: the position of a record in the write-ahead log.
// LSNs are totally ordered by segment first, then by position inside the segment.
type LSN struct {
	// Segment is the id of the log segment that holds the record.
	Segment int64

	// Position is the byte offset of the record frame inside its segment.
	Position int32
}

// NewLSN creates an LSN from its two components.
func NewLSN(segment int64, position int32) LSN {
	return LSN{Segment: segment, Position: position}
}

// Compare returns -1, 0 or +1 depending on whether l is before, equal to or after other.
func (l LSN) Compare(other LSN) int {
	switch {
	case l.Segment < other.Segment:
		return -1
	case l.Segment > other.Segment:
		return 1
	case l.Position < other.Position:
		return -1
	case l.Position > other.Position:
		return 1
	default:
		return 0
	}
}

// Less reports whether l is strictly before other.
func (l LSN) Less(other LSN) bool {
	return l.Compare(other) < 0
}

// IsZero reports whether l is the zero LSN, used for pages that were never logged.
func (l LSN) IsZero() bool {
	return l.Segment == 0 && l.Position == 0
}

func (l LSN) String() string {
	return fmt.Sprintf("LSN{segment=%d, position=%d}", l.Segment, l.Position)
}

// PutLSN writes l into buf, which must hold at least LSNSize bytes.
func PutLSN(buf []byte, l LSN) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(l.Segment))
	binary.BigEndian.PutUint32(buf[8:12], uint32(l.Position))
}

// ReadLSN decodes an LSN from the first LSNSize bytes of buf.
func ReadLSN(buf []byte) LSN {
	return LSN{
		Segment:  int64(binary.BigEndian.Uint64(buf[0:8])),
		Position: int32(binary.BigEndian.Uint32(buf[8:12])),
	}
}

// WriteTo writes the wire form of l to w.
func (l LSN) WriteTo(w io.Writer) (int64, error) {
	var buf [LSNSize]byte
	PutLSN(buf[:], l)
	n, err := w.Write(buf[:])
	return int64(n), err
}

// ReadLSNFrom reads the wire form of an LSN from r.
func ReadLSNFrom(r io.Reader) (LSN, error) {
	var buf [LSNSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return LSN{}, err
	}
	return ReadLSN(buf[:]), nil
}

// MaxLSN returns the later of a and b.
func MaxLSN(a, b LSN) LSN {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}
