package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/record"
	"github.com/haorendashu/pagewal/src/types"
)

func TestMemoryWALAssignsLSNs(t *testing.T) {
	m := NewMemoryWAL()

	_, err := m.End()
	assert.True(t, errors.IsSegmentNotFound(err))

	first, err := m.Log(&record.Empty{})
	require.NoError(t, err)
	assert.Equal(t, types.NewLSN(0, 1), first)

	second, err := m.LogAtomicOperationStart(1, true, nil)
	require.NoError(t, err)
	assert.Equal(t, types.NewLSN(0, 2), second)

	third, err := m.LogAtomicOperationEnd(1, false, nil)
	require.NoError(t, err)
	assert.True(t, second.Less(third))

	end, err := m.End()
	require.NoError(t, err)
	assert.Equal(t, third, end)
}

func TestMemoryWALRejectsDurableOperations(t *testing.T) {
	m := NewMemoryWAL()
	_, err := m.Log(&record.Empty{})
	require.NoError(t, err)

	_, err = m.Begin()
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	_, err = m.BeginSegment(0)
	assert.True(t, errors.IsUnsupported(err))
	_, err = m.Read(types.NewLSN(0, 1), 0)
	assert.True(t, errors.IsUnsupported(err))
	_, err = m.Next(types.NewLSN(0, 1), 0)
	assert.True(t, errors.IsUnsupported(err))
	_, err = m.FlushedLSN()
	assert.True(t, errors.IsUnsupported(err))
	assert.True(t, errors.IsUnsupported(m.AppendNewSegment()))
	assert.True(t, errors.IsUnsupported(m.MoveLSNAfter(types.NewLSN(5, 0))))
}

func TestMemoryWALNoOps(t *testing.T) {
	m := NewMemoryWAL()

	assert.NoError(t, m.Flush())
	removed, err := m.CutTill(types.NewLSN(0, 10))
	require.NoError(t, err)
	assert.False(t, removed)

	m.AddCutTillLimit(types.NewLSN(0, 1))
	assert.NoError(t, m.RemoveCutTillLimit(types.NewLSN(0, 1)))

	ran := false
	require.NoError(t, m.AddEventAt(types.NewLSN(0, 100), func() { ran = true }))
	assert.True(t, ran)

	assert.Empty(t, m.NonActiveSegments())
	assert.Equal(t, int64(-1), m.ActiveSegment())
	assert.Zero(t, m.Size())

	require.NoError(t, m.Close())
	_, err = m.Log(&record.Empty{})
	assert.ErrorIs(t, err, errors.ErrWALClosed)
}
