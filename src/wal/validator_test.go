package wal

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haorendashu/pagewal/src/record"
	"github.com/haorendashu/pagewal/src/types"
)

func TestValidateDirectory(t *testing.T) {
	cfg := testConfig(t)
	w, err := Open(cfg)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := w.Log(payload(i))
		require.NoError(t, err)
	}
	require.NoError(t, w.AppendNewSegment())
	require.NoError(t, w.Close())

	codec, err := record.NewCodec(defaultPageSize)
	require.NoError(t, err)

	results, err := ValidateDirectory(cfg.Dir, defaultName, codec)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Valid())
	assert.Equal(t, 4, results[0].ValidFrames)
	assert.Equal(t, int64(1), results[0].Segment)
	assert.Equal(t, 1, results[1].ValidFrames)

	var out bytes.Buffer
	PrintValidationReport(&out, results[0])
	assert.Contains(t, out.String(), "Segment is valid")

	f, err := os.OpenFile(results[1].FilePath, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 1, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	result, err := ValidateSegmentFile(results[1].FilePath, codec)
	require.NoError(t, err)
	assert.False(t, result.Valid())
	assert.Equal(t, 1, result.InvalidFrames)
	assert.Equal(t, results[1].FileSize, result.ValidEnd)

	out.Reset()
	PrintValidationReport(&out, result)
	assert.Contains(t, out.String(), "torn or corrupt frame")
}

func TestValidateRejectsBadHeader(t *testing.T) {
	dir := t.TempDir()
	path := segmentPath(dir, "wal", 1)
	require.NoError(t, os.WriteFile(path, make([]byte, segmentHeaderSize), 0644))

	codec, err := record.NewCodec(defaultPageSize)
	require.NoError(t, err)

	result, err := ValidateSegmentFile(path, codec)
	require.NoError(t, err)
	assert.False(t, result.HeaderValid)
	assert.False(t, result.Valid())
}

func TestScanSegment(t *testing.T) {
	cfg := testConfig(t)
	w, err := Open(cfg)
	require.NoError(t, err)
	var lsns []types.LSN
	for i := 0; i < 3; i++ {
		lsn, err := w.Log(payload(i))
		require.NoError(t, err)
		lsns = append(lsns, lsn)
	}
	require.NoError(t, w.Close())

	codec, err := record.NewCodec(defaultPageSize)
	require.NoError(t, err)
	paths, err := SegmentPaths(cfg.Dir, defaultName)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	var seen []types.LSN
	end, err := ScanSegment(paths[0], codec, func(lsn types.LSN, r record.Record) error {
		if r.Kind() != record.KindEmpty {
			seen = append(seen, lsn)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, lsns, seen)

	stat, err := os.Stat(paths[0])
	require.NoError(t, err)
	assert.Equal(t, stat.Size(), end)
}

func TestReadFrame(t *testing.T) {
	cfg := testConfig(t)
	w, err := Open(cfg)
	require.NoError(t, err)
	lsn, err := w.Log(payload(7))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := segmentPath(cfg.Dir, defaultName, lsn.Segment)
	fr, err := ReadFrame(path, int64(lsn.Position))
	require.NoError(t, err)
	assert.Equal(t, lsn, fr.LSN)
	assert.Equal(t, record.KindHighLevelTransactionChange, fr.Kind)
	assert.Contains(t, string(fr.Payload), "change-007")
	assert.Equal(t, frameOverhead+len(fr.Payload), fr.Size)

	_, err = ReadFrame(path, 3)
	assert.Error(t, err)
	_, err = ReadFrame(path, int64(lsn.Position)+1)
	assert.Error(t, err)
}
