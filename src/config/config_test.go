package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/pagestore"
	"github.com/haorendashu/pagewal/src/wal"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
	}{
		{name: "default config", mutate: func(*Config) {}},
		{
			name: "custom",
			mutate: func(c *Config) {
				c.WALConfig.SyncMode = "always"
				c.WALConfig.SizeLimit = 1 << 30
				c.PageConfig.Size = 8192
				c.PageStoreConfig.Engine = EngineMemory
				c.PageStoreConfig.Dir = ""
			},
		},
		{
			name:      "page size not a multiple of 1024",
			mutate:    func(c *Config) { c.PageConfig.Size = 1000 },
			wantError: true,
		},
		{
			name:      "page size too large",
			mutate:    func(c *Config) { c.PageConfig.Size = 512 * 1024 },
			wantError: true,
		},
		{
			name:      "invalid sync mode",
			mutate:    func(c *Config) { c.WALConfig.SyncMode = "sometimes" },
			wantError: true,
		},
		{
			name:      "missing wal dir",
			mutate:    func(c *Config) { c.WALConfig.Dir = "" },
			wantError: true,
		},
		{
			name: "missing wal dir in memory",
			mutate: func(c *Config) {
				c.WALConfig.Dir = ""
				c.WALConfig.InMemory = true
			},
		},
		{
			name:      "segment size beyond LSN position",
			mutate:    func(c *Config) { c.WALConfig.MaxSegmentSize = 1 << 32 },
			wantError: true,
		},
		{
			name:      "name with separator",
			mutate:    func(c *Config) { c.WALConfig.Name = "a/b" },
			wantError: true,
		},
		{
			name:      "negative size limit",
			mutate:    func(c *Config) { c.WALConfig.SizeLimit = -1 },
			wantError: true,
		},
		{
			name:      "negative segment interval",
			mutate:    func(c *Config) { c.WALConfig.SegmentIntervalMs = -1 },
			wantError: true,
		},
		{
			name:      "unknown engine",
			mutate:    func(c *Config) { c.PageStoreConfig.Engine = "bolt" },
			wantError: true,
		},
		{
			name:      "negative cache",
			mutate:    func(c *Config) { c.PageStoreConfig.CachePages = -1 },
			wantError: true,
		},
		{
			name:      "leveldb without dir",
			mutate:    func(c *Config) { c.PageStoreConfig.Dir = "" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantError {
				require.Error(t, err)
				assert.True(t, errors.IsConfigError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, ValidateConfig(nil))
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagewal.yaml")
	content := `
debug: true
wal:
  dir: /var/lib/pagewal/wal
  sync_mode: ALWAYS
  wal_size_limit: 1048576
  keep_single_segment: true
page:
  page_size: 8192
page_store:
  engine: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := NewManager()
	require.NoError(t, m.Load(context.Background(), path))

	cfg := m.Get()
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/var/lib/pagewal/wal", cfg.WALConfig.Dir)
	assert.Equal(t, wal.SyncAlways, cfg.WALConfig.SyncMode)
	assert.Equal(t, int64(1048576), cfg.WALConfig.SizeLimit)
	assert.True(t, cfg.WALConfig.KeepSingleSegment)
	assert.Equal(t, 8192, cfg.PageConfig.Size)
	assert.Equal(t, EngineMemory, cfg.PageStoreConfig.Engine)

	// defaults fill what the file leaves out
	assert.Equal(t, "wal", cfg.WALConfig.Name)
	assert.Equal(t, int64(128*1024*1024), cfg.WALConfig.MaxSegmentSize)
	assert.Equal(t, 100, cfg.WALConfig.BatchIntervalMs)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagewal.json")
	content := `{"wal": {"dir": "/tmp/w", "name": "log", "batch_size_bytes": 65536}, "page": {"page_size": 2048}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := NewManager()
	require.NoError(t, m.Load(context.Background(), path))
	assert.Equal(t, "log", m.Get().WALConfig.Name)
	assert.Equal(t, 65536, m.Get().WALConfig.BatchSizeBytes)
	assert.Equal(t, 2048, m.Get().PageConfig.Size)
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := NewManager()

	assert.Error(t, m.Load(ctx, ""))
	assert.Error(t, m.Load(ctx, filepath.Join(dir, "missing.yaml")))

	toml := filepath.Join(dir, "c.toml")
	require.NoError(t, os.WriteFile(toml, []byte("x = 1"), 0o644))
	assert.Error(t, m.Load(ctx, toml))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"page": {"page_size": 100}}`), 0o644))
	err := m.Load(ctx, bad)
	assert.True(t, errors.IsConfigError(err))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PAGEWAL_WAL_DIR", "/env/wal")
	t.Setenv("PAGEWAL_WAL_SYNC_MODE", "never")
	t.Setenv("PAGEWAL_WAL_MAX_SEGMENT_SIZE", "1048576")
	t.Setenv("PAGEWAL_WAL_IN_MEMORY", "true")
	t.Setenv("PAGEWAL_PAGE_SIZE", "16384")
	t.Setenv("PAGEWAL_WAL_SIZE_LIMIT", "65536")
	t.Setenv("PAGEWAL_WAL_SEGMENT_INTERVAL_MS", "60000")
	t.Setenv("PAGEWAL_PAGE_STORE_SYNC_WRITES", "1")
	t.Setenv("PAGEWAL_PAGE_STORE_CACHE_PAGES", "32")

	m := NewManager()
	require.NoError(t, m.LoadFromEnv(context.Background()))

	cfg := m.Get()
	assert.Equal(t, "/env/wal", cfg.WALConfig.Dir)
	assert.Equal(t, wal.SyncNever, cfg.WALConfig.SyncMode)
	assert.Equal(t, int64(1048576), cfg.WALConfig.MaxSegmentSize)
	assert.Equal(t, int64(65536), cfg.WALConfig.SizeLimit)
	assert.Equal(t, 60000, cfg.WALConfig.SegmentIntervalMs)
	assert.Equal(t, 60000, cfg.WALOptions(nil, nil).SegmentIntervalMs)
	assert.True(t, cfg.WALConfig.InMemory)
	assert.Equal(t, 16384, cfg.PageConfig.Size)
	assert.True(t, cfg.PageStoreConfig.SyncWrites)
	assert.Equal(t, 32, cfg.PageStoreConfig.CachePages)
	assert.Equal(t, 100, cfg.WALConfig.BatchIntervalMs)
}

func TestLoadFromEnvMalformed(t *testing.T) {
	t.Setenv("PAGEWAL_WAL_DIR", "/env/wal")
	t.Setenv("PAGEWAL_WAL_BATCH_INTERVAL_MS", "not-a-number")

	m := NewManager()
	err := m.LoadFromEnv(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Equal(t, "./data/wal", m.Get().WALConfig.Dir, "a malformed variable leaves the config unchanged")
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	require.NoError(t, m.Update(ctx, &Config{WALConfig: WALConfig{SyncMode: "Always", KeepSingleSegment: true}}))
	assert.Equal(t, wal.SyncAlways, m.Get().WALConfig.SyncMode)
	assert.True(t, m.Get().WALConfig.KeepSingleSegment)
	assert.Equal(t, "./data/wal", m.Get().WALConfig.Dir)

	err := m.Update(ctx, &Config{PageConfig: PageConfig{Size: 3}})
	assert.Error(t, err)
	assert.Equal(t, 4096, m.Get().PageConfig.Size, "a rejected update leaves the config unchanged")

	assert.Error(t, m.Update(ctx, nil))
}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, name := range []string{"out.yaml", "out.json"} {
		t.Run(name, func(t *testing.T) {
			m := NewManager()
			require.NoError(t, m.Update(ctx, &Config{
				WALConfig:  WALConfig{Dir: "/srv/wal", SizeLimit: 4096},
				PageConfig: PageConfig{Size: 2048},
			}))
			path := filepath.Join(dir, name)
			require.NoError(t, m.Save(ctx, path))

			loaded := NewManager()
			require.NoError(t, loaded.Load(ctx, path))
			assert.Equal(t, m.Get(), loaded.Get())
		})
	}
}

func TestOpenFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.WALConfig.Dir = filepath.Join(dir, "wal")
	cfg.WALConfig.SyncMode = wal.SyncNever
	cfg.PageStoreConfig.Dir = filepath.Join(dir, "pages")

	w, err := cfg.OpenWAL(nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &wal.DiskWAL{}, w)
	require.NoError(t, w.Close())

	store, err := cfg.OpenPageStore(nil)
	require.NoError(t, err)
	assert.IsType(t, &pagestore.LevelDBStore{}, store)
	assert.Equal(t, 4096, store.PageSize())
	require.NoError(t, store.Close())

	cfg.PageStoreConfig.CachePages = 16
	store, err = cfg.OpenPageStore(nil)
	require.NoError(t, err)
	assert.IsType(t, &pagestore.CachedStore{}, store)
	require.NoError(t, store.Close())
	cfg.PageStoreConfig.CachePages = 0

	cfg.WALConfig.InMemory = true
	cfg.PageStoreConfig.Engine = EngineMemory
	w, err = cfg.OpenWAL(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), w.ActiveSegment())

	store, err = cfg.OpenPageStore(nil)
	require.NoError(t, err)
	assert.IsType(t, &pagestore.MemoryStore{}, store)
}
