// Package pagechanges captures byte-level changes made to one page by one atomic operation.
//
// A page is split into portions of 1024 bytes, each holding 32 chunks of 32 bytes.
// A chunk is materialized the first time any byte in it is written; chunks that were
// never written read through to the base page image. Materialized chunks live in a flat
// arena of 32-byte slots, with a presence bitset indexed by chunk number
// (portion*32 + chunk) and a slot table mapping chunk number to arena slot.
//
// Multi-byte values are stored big-endian inside the page.
package pagechanges

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"

	"github.com/haorendashu/pagewal/src/errors"
)

const (
	// ChunkSize is the granularity of change capture.
	ChunkSize = 32

	// ChunksPerPortion is the number of chunks in one portion.
	ChunksPerPortion = 32

	// PortionSize is the number of page bytes covered by one portion.
	PortionSize = ChunkSize * ChunksPerPortion

	// MaxPortions is the number of portions addressable by the one-byte portion index of the wire form.
	MaxPortions = 256

	// MaxPageSize is the largest page a change set can describe.
	MaxPageSize = PortionSize * MaxPortions

	chunkWireSize = 2 + ChunkSize
	countWireSize = 2
)

// Base is an optional, borrowed view of the page image that changes are layered on.
// A page that exists only in memory and was never backed by a page buffer has no base;
// its unwritten bytes read as zero.
type Base struct {
	page    []byte
	present bool
}

// Backed returns a Base over page. The change set never writes to page.
func Backed(page []byte) Base {
	return Base{page: page, present: true}
}

// Unbacked returns the Base of a page with no page image yet.
func Unbacked() Base {
	return Base{}
}

// Present reports whether the base carries a page image.
func (b Base) Present() bool {
	return b.present
}

// copyOut copies len(dst) bytes starting at pos from the base into dst.
// Bytes past the end of the base image, or of an absent base, read as zero.
func (b Base) copyOut(dst []byte, pos int) {
	n := 0
	if b.present && pos < len(b.page) {
		n = copy(dst, b.page[pos:])
	}
	clear(dst[n:])
}

// Set is the change set of a single page.
// It is owned by one atomic operation while being built and is immutable once logged.
type Set struct {
	pageSize int
	present  *bitset.BitSet
	slots    []uint16
	arena    []byte
}

// New creates an empty change set for pages of pageSize bytes.
func New(pageSize int) (*Set, error) {
	if pageSize <= 0 || pageSize%PortionSize != 0 || pageSize > MaxPageSize {
		return nil, errors.NewInvalidPageSize(pageSize)
	}
	chunks := pageSize / ChunkSize
	return &Set{
		pageSize: pageSize,
		present:  bitset.New(uint(chunks)),
		slots:    make([]uint16, chunks),
	}, nil
}

// PageSize returns the size of the page this set describes.
func (s *Set) PageSize() int {
	return s.pageSize
}

// HasChanges reports whether any chunk was ever materialized.
func (s *Set) HasChanges() bool {
	return s.present.Any()
}

// ChunkCount returns the number of materialized chunks.
func (s *Set) ChunkCount() int {
	return int(s.present.Count())
}

func (s *Set) checkRange(offset, length int) {
	if offset < 0 || length < 0 || offset+length > s.pageSize {
		panic(errors.NewPageOverflow(offset, length, s.pageSize))
	}
}

// chunk returns the materialized bytes of chunk number n, or nil.
func (s *Set) chunk(n int) []byte {
	if !s.present.Test(uint(n)) {
		return nil
	}
	start := int(s.slots[n]) * ChunkSize
	return s.arena[start : start+ChunkSize]
}

// materialize returns chunk n, allocating it and filling it from base on first use.
func (s *Set) materialize(base Base, n int) []byte {
	if c := s.chunk(n); c != nil {
		return c
	}
	slot := len(s.arena) / ChunkSize
	s.arena = append(s.arena, make([]byte, ChunkSize)...)
	s.slots[n] = uint16(slot)
	s.present.Set(uint(n))

	c := s.arena[slot*ChunkSize : (slot+1)*ChunkSize]
	base.copyOut(c, n*ChunkSize)
	return c
}

// SetBinary writes data at offset, materializing every chunk it touches.
func (s *Set) SetBinary(base Base, data []byte, offset int) {
	s.checkRange(offset, len(data))

	written := 0
	for written < len(data) {
		pos := offset + written
		n := pos / ChunkSize
		inChunk := pos % ChunkSize

		c := s.materialize(base, n)
		written += copy(c[inChunk:], data[written:])
	}
}

// GetBinary reads length bytes at offset, preferring captured chunks over the base image.
func (s *Set) GetBinary(base Base, offset, length int) []byte {
	s.checkRange(offset, length)

	out := make([]byte, length)
	read := 0
	for read < length {
		pos := offset + read
		n := pos / ChunkSize
		inChunk := pos % ChunkSize
		span := min(ChunkSize-inChunk, length-read)

		if c := s.chunk(n); c != nil {
			copy(out[read:read+span], c[inChunk:])
		} else {
			base.copyOut(out[read:read+span], pos)
		}
		read += span
	}
	return out
}

// SetLong writes a big-endian int64 at offset.
func (s *Set) SetLong(base Base, value int64, offset int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(value))
	s.SetBinary(base, buf[:], offset)
}

// SetInt writes a big-endian int32 at offset.
func (s *Set) SetInt(base Base, value int32, offset int) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(value))
	s.SetBinary(base, buf[:], offset)
}

// SetShort writes a big-endian int16 at offset.
func (s *Set) SetShort(base Base, value int16, offset int) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(value))
	s.SetBinary(base, buf[:], offset)
}

// SetByte writes one byte at offset.
func (s *Set) SetByte(base Base, value byte, offset int) {
	s.SetBinary(base, []byte{value}, offset)
}

// GetLong reads a big-endian int64 at offset.
func (s *Set) GetLong(base Base, offset int) int64 {
	return int64(binary.BigEndian.Uint64(s.GetBinary(base, offset, 8)))
}

// GetInt reads a big-endian int32 at offset.
func (s *Set) GetInt(base Base, offset int) int32 {
	return int32(binary.BigEndian.Uint32(s.GetBinary(base, offset, 4)))
}

// GetShort reads a big-endian int16 at offset.
func (s *Set) GetShort(base Base, offset int) int16 {
	return int16(binary.BigEndian.Uint16(s.GetBinary(base, offset, 2)))
}

// GetByte reads one byte at offset.
func (s *Set) GetByte(base Base, offset int) byte {
	return s.GetBinary(base, offset, 1)[0]
}

// MoveData copies length bytes from one page offset to another. Overlapping ranges are allowed.
func (s *Set) MoveData(base Base, from, to, length int) {
	data := s.GetBinary(base, from, length)
	s.SetBinary(base, data, to)
}

// Apply overlays every materialized chunk onto page in (portion, chunk) order.
// page must be at least PageSize bytes long.
func (s *Set) Apply(page []byte) {
	if len(page) < s.pageSize {
		panic(errors.NewPageOverflow(0, s.pageSize, len(page)))
	}
	for n, ok := s.present.NextSet(0); ok; n, ok = s.present.NextSet(n + 1) {
		copy(page[int(n)*ChunkSize:], s.chunk(int(n)))
	}
}

// SerializedSize returns the exact size of the wire form.
func (s *Set) SerializedSize() int {
	return countWireSize + s.ChunkCount()*chunkWireSize
}

// MarshalTo writes the wire form into buf and returns the number of bytes written.
// buf must hold at least SerializedSize bytes.
//
// Layout: int16 count | count * (byte portion | byte chunk | [32]byte data)
func (s *Set) MarshalTo(buf []byte) int {
	binary.BigEndian.PutUint16(buf[0:2], uint16(s.ChunkCount()))
	off := countWireSize
	for n, ok := s.present.NextSet(0); ok; n, ok = s.present.NextSet(n + 1) {
		buf[off] = byte(int(n) / ChunksPerPortion)
		buf[off+1] = byte(int(n) % ChunksPerPortion)
		copy(buf[off+2:off+chunkWireSize], s.chunk(int(n)))
		off += chunkWireSize
	}
	return off
}

// Unmarshal decodes a change set for pages of pageSize bytes from the start of buf.
// It returns the set and the number of bytes consumed.
func Unmarshal(buf []byte, pageSize int) (*Set, int, error) {
	s, err := New(pageSize)
	if err != nil {
		return nil, 0, err
	}
	if len(buf) < countWireSize {
		return nil, 0, errors.NewFormatError("page changes: missing chunk count")
	}
	count := int(int16(binary.BigEndian.Uint16(buf[0:2])))
	if count < 0 || count > len(s.slots) {
		return nil, 0, errors.NewFormatError("page changes: corrupt chunk count %d", count)
	}
	if len(buf) < countWireSize+count*chunkWireSize {
		return nil, 0, errors.NewFormatError("page changes: %d chunks need %d bytes, have %d",
			count, countWireSize+count*chunkWireSize, len(buf))
	}

	off := countWireSize
	for i := 0; i < count; i++ {
		portion, chunk := int(buf[off]), int(buf[off+1])
		n := portion*ChunksPerPortion + chunk
		if chunk >= ChunksPerPortion || n >= len(s.slots) {
			return nil, 0, errors.NewFormatError("page changes: chunk (%d, %d) outside page of %d bytes", portion, chunk, pageSize)
		}
		if s.present.Test(uint(n)) {
			return nil, 0, errors.NewFormatError("page changes: duplicate chunk (%d, %d)", portion, chunk)
		}
		c := s.materialize(Unbacked(), n)
		copy(c, buf[off+2:off+chunkWireSize])
		off += chunkWireSize
	}
	return s, off, nil
}

// Equal reports whether both sets describe the same page size and captured bytes.
func (s *Set) Equal(other *Set) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.pageSize != other.pageSize || !s.present.Equal(other.present) {
		return false
	}
	for n, ok := s.present.NextSet(0); ok; n, ok = s.present.NextSet(n + 1) {
		if string(s.chunk(int(n))) != string(other.chunk(int(n))) {
			return false
		}
	}
	return true
}
