package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haorendashu/pagewal/src/atomicop"
	"github.com/haorendashu/pagewal/src/pagestore"
	"github.com/haorendashu/pagewal/src/wal"
)

// writeLog commits one atomic unit that creates file 1 and writes 01 02 03 04 to its first page.
func writeLog(t *testing.T, dir string) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w, err := wal.Open(wal.Config{Dir: dir, SyncMode: wal.SyncAlways, Logger: logger})
	require.NoError(t, err)
	defer w.Close()

	m := atomicop.NewManager(w, pagestore.NewMemoryStore(4096), atomicop.Options{Logger: logger})
	op, err := m.Start(ctx, true, nil)
	require.NoError(t, err)
	require.NoError(t, op.AddFile(ctx, "data.pcl", 1))
	page, err := op.LoadPageForWrite(ctx, 1, 0)
	require.NoError(t, err)
	page.SetBinary([]byte{1, 2, 3, 4}, 0)
	_, err = m.End(ctx, op)
	require.NoError(t, err)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir)

	out, err := run(t, "validate", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Segment is valid")
	assert.Contains(t, out, "Total invalid frames: 0")

	paths, err := wal.SegmentPaths(dir, "wal")
	require.NoError(t, err)
	f, err := os.OpenFile(paths[0], os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 1, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err = run(t, "validate", "--file", paths[0])
	assert.ErrorIs(t, err, errInvalid)
	assert.Contains(t, out, "torn or corrupt frame")

	_, err = run(t, "validate")
	assert.Error(t, err)
}

func TestDumpCommand(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir)

	out, err := run(t, "dump", "--dir", dir, "--skip-empty")
	require.NoError(t, err)
	assert.Contains(t, out, "AtomicUnitStart")
	assert.Contains(t, out, `file=1 name="data.pcl"`)
	assert.Contains(t, out, "file=1 page=0")
	assert.Contains(t, out, "rollback=false")
	assert.NotContains(t, out, "Empty")

	out, err = run(t, "dump", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Empty")
}

func TestFrameCommand(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir)
	paths, err := wal.SegmentPaths(dir, "wal")
	require.NoError(t, err)

	out, err := run(t, "frame", "--file", paths[0], "--offset", "40")
	require.NoError(t, err)
	assert.Contains(t, out, "Kind: AtomicUnitStart")
	assert.Contains(t, out, "LSN: ")
}

func TestRecoverCommand(t *testing.T) {
	dir := t.TempDir()
	walDir := filepath.Join(dir, "wal")
	storeDir := filepath.Join(dir, "pages")
	writeLog(t, walDir)

	out, err := run(t, "recover", "--dir", walDir, "--store", storeDir, "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "Units committed: 1")
	assert.Contains(t, out, "Records applied: 2")
	assert.Contains(t, out, "pagewal_")

	store, err := pagestore.OpenLevelDB(pagestore.LevelDBOptions{Path: storeDir, PageSize: 4096})
	require.NoError(t, err)
	defer store.Close()
	page, err := store.LoadPage(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, page.Data[:4])
}
