package pagechanges

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haorendashu/pagewal/src/errors"
)

const testPageSize = 4096

func newSet(t *testing.T) *Set {
	t.Helper()
	s, err := New(testPageSize)
	require.NoError(t, err)
	return s
}

func patternPage() []byte {
	page := make([]byte, testPageSize)
	for i := range page {
		page[i] = byte(i * 7)
	}
	return page
}

func TestNewRejectsInvalidPageSize(t *testing.T) {
	for _, size := range []int{0, -1024, 1000, 4097, MaxPageSize + PortionSize} {
		_, err := New(size)
		assert.ErrorIs(t, err, errors.ErrInvalidPageSize, "size %d", size)
	}

	s, err := New(MaxPageSize)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, s.PageSize())
}

func TestEmptySetIsNoOp(t *testing.T) {
	s := newSet(t)
	assert.False(t, s.HasChanges())

	page := patternPage()
	want := append([]byte(nil), page...)
	s.Apply(page)
	assert.Equal(t, want, page)
	assert.Equal(t, 2, s.SerializedSize())
}

func TestTypedValuesReadBack(t *testing.T) {
	s := newSet(t)
	base := Backed(patternPage())

	s.SetLong(base, -42, 100)
	s.SetInt(base, 0x01020304, 200)
	s.SetShort(base, -2, 300)
	s.SetByte(base, 0xAB, 400)

	assert.Equal(t, int64(-42), s.GetLong(base, 100))
	assert.Equal(t, int32(0x01020304), s.GetInt(base, 200))
	assert.Equal(t, int16(-2), s.GetShort(base, 300))
	assert.Equal(t, byte(0xAB), s.GetByte(base, 400))
	assert.Equal(t, []byte{1, 2, 3, 4}, s.GetBinary(base, 200, 4))
}

func TestReadsFallBackToBase(t *testing.T) {
	s := newSet(t)
	page := patternPage()

	assert.Equal(t, page[500:540], s.GetBinary(Backed(page), 500, 40))
	assert.Equal(t, make([]byte, 40), s.GetBinary(Unbacked(), 500, 40))
	assert.False(t, s.HasChanges())
}

func TestPartialChunkWritesPreserveCapturedBytes(t *testing.T) {
	page := patternPage()

	split := newSet(t)
	split.SetBinary(Backed(page), []byte{1, 2, 3, 4}, 0)
	split.SetBinary(Backed(page), []byte{5, 6, 7, 8}, 4)

	whole := newSet(t)
	whole.SetBinary(Backed(page), []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0)

	a := append([]byte(nil), page...)
	b := append([]byte(nil), page...)
	split.Apply(a)
	whole.Apply(b)

	assert.Equal(t, b, a)
	assert.Equal(t, page[8:ChunkSize], a[8:ChunkSize])
	assert.Equal(t, 1, split.ChunkCount())
}

func TestApplyIsIdempotent(t *testing.T) {
	s := newSet(t)
	page := patternPage()
	base := Backed(page)
	s.SetBinary(base, bytes.Repeat([]byte{0xEE}, 70), 1000)
	s.SetInt(base, 7, 3000)

	once := append([]byte(nil), page...)
	s.Apply(once)
	twice := append([]byte(nil), page...)
	s.Apply(twice)
	s.Apply(twice)

	assert.Equal(t, once, twice)
}

func TestMoveData(t *testing.T) {
	s := newSet(t)
	page := patternPage()
	base := Backed(page)

	data := []byte("twenty bytes of data")
	require.Len(t, data, 20)
	s.SetBinary(base, data, 10)
	s.MoveData(base, 10, 50, 20)

	out := append([]byte(nil), page...)
	s.Apply(out)
	assert.Equal(t, data, out[50:70])
	assert.Equal(t, data, out[10:30])
}

func TestMoveDataOverlapping(t *testing.T) {
	s := newSet(t)
	base := Unbacked()
	s.SetBinary(base, []byte{1, 2, 3, 4, 5, 6}, 0)
	s.MoveData(base, 0, 2, 6)

	assert.Equal(t, []byte{1, 2, 1, 2, 3, 4, 5, 6}, s.GetBinary(base, 0, 8))
}

func TestWriteStraddlingPortionBoundary(t *testing.T) {
	s := newSet(t)
	page := patternPage()
	base := Backed(page)

	data := bytes.Repeat([]byte{0x5A}, 40)
	s.SetBinary(base, data, PortionSize-20)

	assert.Equal(t, 2, s.ChunkCount())
	assert.Equal(t, data, s.GetBinary(base, PortionSize-20, 40))

	out := append([]byte(nil), page...)
	s.Apply(out)
	assert.Equal(t, page[:PortionSize-20], out[:PortionSize-20])
	assert.Equal(t, data, out[PortionSize-20:PortionSize+20])
	assert.Equal(t, page[PortionSize+20:], out[PortionSize+20:])
}

func TestOverflowPanics(t *testing.T) {
	s := newSet(t)

	assertOverflow := func(fn func()) {
		t.Helper()
		defer func() {
			r := recover()
			require.NotNil(t, r)
			err, ok := r.(error)
			require.True(t, ok)
			assert.True(t, errors.IsPageOverflow(err))
		}()
		fn()
	}

	assertOverflow(func() { s.SetLong(Unbacked(), 1, testPageSize-4) })
	assertOverflow(func() { s.GetBinary(Unbacked(), -1, 2) })
	assertOverflow(func() { s.MoveData(Unbacked(), 0, testPageSize-1, 2) })
	assertOverflow(func() { s.Apply(make([]byte, 100)) })
	assert.False(t, s.HasChanges())
}

func TestWireRoundTrip(t *testing.T) {
	s := newSet(t)
	base := Backed(patternPage())
	s.SetBinary(base, []byte{9, 9, 9}, 3000)
	s.SetInt(base, 0x01020304, 0)
	s.SetBinary(base, bytes.Repeat([]byte{1}, 64), 2040)

	buf := make([]byte, s.SerializedSize()+5)
	n := s.MarshalTo(buf)
	require.Equal(t, s.SerializedSize(), n)

	// First chunk on the wire is (portion 0, chunk 0) with the int at its start.
	assert.Equal(t, []byte{0, 5, 0, 0, 1, 2, 3, 4}, buf[:8])

	decoded, consumed, err := Unmarshal(buf, testPageSize)
	require.NoError(t, err)
	assert.Equal(t, n, consumed)
	assert.True(t, s.Equal(decoded))

	a, b := patternPage(), patternPage()
	s.Apply(a)
	decoded.Apply(b)
	assert.Equal(t, a, b)
}

func TestUnmarshalRejectsCorruptInput(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"negative count", []byte{0xFF, 0xFF}},
		{"count larger than page", []byte{0x7F, 0xFF}},
		{"truncated chunk", append([]byte{0, 1, 0, 0}, make([]byte, 10)...)},
		{"chunk index out of portion", append([]byte{0, 1, 0, 32}, make([]byte, ChunkSize)...)},
		{"portion outside page", append([]byte{0, 1, 4, 0}, make([]byte, ChunkSize)...)},
		{"duplicate chunk", append(append([]byte{0, 2, 0, 1}, make([]byte, ChunkSize)...), append([]byte{0, 1}, make([]byte, ChunkSize)...)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Unmarshal(tt.buf, testPageSize)
			assert.True(t, errors.IsFormat(err), "got %v", err)
		})
	}
}

func TestBaseIsNeverWritten(t *testing.T) {
	s := newSet(t)
	page := patternPage()
	want := append([]byte(nil), page...)

	s.SetBinary(Backed(page), bytes.Repeat([]byte{0xFF}, 100), 10)
	assert.Equal(t, want, page)
}
