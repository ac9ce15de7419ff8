// Package config manages log configuration: segment files, sync policy, page size and the page store.
// Configuration can be loaded from files (JSON/YAML), environment variables, or code.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/metrics"
	"github.com/haorendashu/pagewal/src/pagestore"
	"github.com/haorendashu/pagewal/src/wal"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "PAGEWAL"

// Page store engines.
const (
	EngineMemory  = "memory"
	EngineLevelDB = "leveldb"
)

// Config represents the complete configuration.
type Config struct {
	// Debug enables debug logging.
	Debug bool `json:"debug,omitempty" yaml:"debug,omitempty"`

	// WALConfig specifies write-ahead log settings.
	WALConfig WALConfig `json:"wal" yaml:"wal" envconfig:"WAL"`

	// PageConfig specifies the page geometry.
	PageConfig PageConfig `json:"page" yaml:"page" envconfig:"PAGE"`

	// PageStoreConfig specifies where pages are kept.
	PageStoreConfig PageStoreConfig `json:"page_store" yaml:"page_store" envconfig:"PAGE_STORE"`
}

// WALConfig defines write-ahead log parameters.
type WALConfig struct {
	// Dir is the directory where segment files are stored.
	// Default: "./data/wal"
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Name is the segment file prefix.
	// Default: "wal"
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// MaxSegmentSize is the maximum size of a segment before rotation.
	// Default: 128 MB (134217728)
	MaxSegmentSize int64 `json:"max_segment_size,omitempty" yaml:"max_segment_size,omitempty" split_words:"true"`

	// SyncMode is the durability mode ("always", "batch", "never").
	// - "always": fsync after every record (safest, slowest)
	// - "batch": fsync on a timer or when the buffer fills (default, balanced)
	// - "never": fsync only when the buffer fills, on Flush and on Close
	// Default: "batch"
	SyncMode string `json:"sync_mode,omitempty" yaml:"sync_mode,omitempty" split_words:"true"`

	// BatchIntervalMs is the flush interval for batch mode in milliseconds.
	// Default: 100 ms
	BatchIntervalMs int `json:"batch_interval_ms,omitempty" yaml:"batch_interval_ms,omitempty" split_words:"true"`

	// BatchSizeBytes is the buffer size before forcing a flush.
	// Default: 4 MB (4194304)
	BatchSizeBytes int `json:"batch_size_bytes,omitempty" yaml:"batch_size_bytes,omitempty" split_words:"true"`

	// SizeLimit is the total log size above which checkpoints are requested. 0 disables it.
	SizeLimit int64 `json:"wal_size_limit,omitempty" yaml:"wal_size_limit,omitempty" split_words:"true"`

	// SegmentIntervalMs starts a new segment once the active one is this old and holds records.
	// 0 disables time-based rotation.
	SegmentIntervalMs int `json:"segment_interval_ms,omitempty" yaml:"segment_interval_ms,omitempty" split_words:"true"`

	// KeepSingleSegment requests a checkpoint whenever more than one segment exists.
	KeepSingleSegment bool `json:"keep_single_segment,omitempty" yaml:"keep_single_segment,omitempty" split_words:"true"`

	// InMemory selects the in-memory log, which assigns LSNs but keeps nothing.
	InMemory bool `json:"in_memory,omitempty" yaml:"in_memory,omitempty" split_words:"true"`
}

// PageConfig defines page geometry.
type PageConfig struct {
	// Size must be a multiple of 1024 and at most 256 KB.
	// Default: 4096
	Size int `json:"page_size,omitempty" yaml:"page_size,omitempty"`
}

// PageStoreConfig defines the page store.
type PageStoreConfig struct {
	// Engine is "memory" or "leveldb".
	// Default: "leveldb"
	Engine string `json:"engine,omitempty" yaml:"engine,omitempty"`

	// Dir is the LevelDB directory.
	// Default: "./data/pages"
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// SyncWrites syncs every page write.
	SyncWrites bool `json:"sync_writes,omitempty" yaml:"sync_writes,omitempty" split_words:"true"`

	// CachePages is the number of pages kept in an LRU cache in front of the store. 0 disables it.
	CachePages int `json:"cache_pages,omitempty" yaml:"cache_pages,omitempty" split_words:"true"`
}

// Manager manages configuration loading, validation, and updating.
type Manager interface {
	// Load loads configuration from a file (JSON or YAML).
	// Returns error if the file doesn't exist or is invalid.
	Load(ctx context.Context, path string) error

	// LoadFromEnv loads configuration from environment variables.
	// Variables are prefixed with PAGEWAL_ (e.g., PAGEWAL_WAL_DIR).
	// Env vars override file config if both are present.
	LoadFromEnv(ctx context.Context) error

	// SetDefaults sets default values for any unspecified fields.
	SetDefaults()

	// Validate checks that the configuration is valid and consistent.
	Validate() error

	// Get returns the current configuration (read-only).
	Get() *Config

	// Update applies a partial configuration update.
	// Only specified fields are updated; unspecified fields are left unchanged.
	Update(ctx context.Context, partial *Config) error

	// Save writes the current configuration to a file, as YAML for .yaml/.yml paths and JSON otherwise.
	Save(ctx context.Context, path string) error
}

// ManagerImpl is a default implementation of Manager.
type ManagerImpl struct {
	config *Config
}

// NewManager creates a new configuration manager.
func NewManager() Manager {
	return &ManagerImpl{
		config: DefaultConfig(),
	}
}

// Load loads configuration from a file.
func (m *ManagerImpl) Load(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var cfg *Config
	switch ext {
	case ".json":
		cfg, err = LoadJSON(data)
	case ".yaml", ".yml":
		cfg, err = LoadYAML(data)
	default:
		return fmt.Errorf("unsupported config file extension: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	m.config = cfg
	m.SetDefaults()
	return m.Validate()
}

// LoadFromEnv loads configuration from environment variables.
func (m *ManagerImpl) LoadFromEnv(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.config == nil {
		m.config = DefaultConfig()
	}

	// Process into a copy so a malformed variable leaves the current config untouched.
	cfg := *m.config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return errors.NewConfigError("couldn't process environment", err)
	}
	m.config = &cfg

	m.SetDefaults()
	return m.Validate()
}

// SetDefaults fills zero fields with default values.
func (m *ManagerImpl) SetDefaults() {
	if m.config == nil {
		m.config = DefaultConfig()
		return
	}
	defaults := DefaultConfig()
	c := m.config

	if c.WALConfig.Dir == "" {
		c.WALConfig.Dir = defaults.WALConfig.Dir
	}
	if c.WALConfig.Name == "" {
		c.WALConfig.Name = defaults.WALConfig.Name
	}
	if c.WALConfig.MaxSegmentSize == 0 {
		c.WALConfig.MaxSegmentSize = defaults.WALConfig.MaxSegmentSize
	}
	if c.WALConfig.SyncMode == "" {
		c.WALConfig.SyncMode = defaults.WALConfig.SyncMode
	}
	c.WALConfig.SyncMode = strings.ToLower(c.WALConfig.SyncMode)
	if c.WALConfig.BatchIntervalMs == 0 {
		c.WALConfig.BatchIntervalMs = defaults.WALConfig.BatchIntervalMs
	}
	if c.WALConfig.BatchSizeBytes == 0 {
		c.WALConfig.BatchSizeBytes = defaults.WALConfig.BatchSizeBytes
	}

	if c.PageConfig.Size == 0 {
		c.PageConfig.Size = defaults.PageConfig.Size
	}

	if c.PageStoreConfig.Engine == "" {
		c.PageStoreConfig.Engine = defaults.PageStoreConfig.Engine
	}
	if c.PageStoreConfig.Dir == "" {
		c.PageStoreConfig.Dir = defaults.PageStoreConfig.Dir
	}
}

// Validate validates the configuration.
func (m *ManagerImpl) Validate() error {
	return ValidateConfig(m.config)
}

// Get returns the current configuration.
func (m *ManagerImpl) Get() *Config {
	return m.config
}

// Update applies a partial configuration update.
func (m *ManagerImpl) Update(ctx context.Context, partial *Config) error {
	if partial == nil {
		return fmt.Errorf("partial config is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.config == nil {
		m.config = DefaultConfig()
	}

	merged := *m.config
	mergeConfig(&merged, partial)
	merged.WALConfig.SyncMode = strings.ToLower(merged.WALConfig.SyncMode)
	if err := ValidateConfig(&merged); err != nil {
		return err
	}
	m.config = &merged
	return nil
}

// Save writes the configuration to a file.
func (m *ManagerImpl) Save(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.config == nil {
		return fmt.Errorf("no config to save")
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(m.config)
	default:
		data, err = json.MarshalIndent(m.config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from JSON bytes.
func LoadJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadYAML loads configuration from YAML bytes.
func LoadYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WALOptions converts the WAL section to wal.Config.
func (c *Config) WALOptions(logger *slog.Logger, collector *metrics.Collector) wal.Config {
	return wal.Config{
		Dir:               c.WALConfig.Dir,
		Name:              c.WALConfig.Name,
		MaxSegmentSize:    c.WALConfig.MaxSegmentSize,
		SyncMode:          c.WALConfig.SyncMode,
		BatchIntervalMs:   c.WALConfig.BatchIntervalMs,
		BatchSizeBytes:    c.WALConfig.BatchSizeBytes,
		WALSizeLimit:      c.WALConfig.SizeLimit,
		KeepSingleSegment: c.WALConfig.KeepSingleSegment,
		SegmentIntervalMs: c.WALConfig.SegmentIntervalMs,
		PageSize:          c.PageConfig.Size,
		Logger:            logger,
		Metrics:           collector,
	}
}

// PageStoreOptions converts the page store section to pagestore.LevelDBOptions.
func (c *Config) PageStoreOptions(logger *slog.Logger) pagestore.LevelDBOptions {
	return pagestore.LevelDBOptions{
		Path:       c.PageStoreConfig.Dir,
		PageSize:   c.PageConfig.Size,
		SyncWrites: c.PageStoreConfig.SyncWrites,
		Logger:     logger,
	}
}

// OpenWAL opens the log the configuration selects.
func (c *Config) OpenWAL(logger *slog.Logger, collector *metrics.Collector) (wal.WAL, error) {
	if c.WALConfig.InMemory {
		return wal.NewMemoryWAL(), nil
	}
	return wal.Open(c.WALOptions(logger, collector))
}

// OpenPageStore opens the page store the configuration selects.
func (c *Config) OpenPageStore(logger *slog.Logger) (pagestore.Store, error) {
	var store pagestore.Store
	if strings.EqualFold(c.PageStoreConfig.Engine, EngineMemory) {
		store = pagestore.NewMemoryStore(c.PageConfig.Size)
	} else {
		db, err := pagestore.OpenLevelDB(c.PageStoreOptions(logger))
		if err != nil {
			return nil, err
		}
		store = db
	}

	if c.PageStoreConfig.CachePages > 0 {
		cached, err := pagestore.NewCachedStore(store, c.PageStoreConfig.CachePages)
		if err != nil {
			store.Close()
			return nil, err
		}
		return cached, nil
	}
	return store, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Debug: false,
		WALConfig: WALConfig{
			Dir:             "./data/wal",
			Name:            "wal",
			MaxSegmentSize:  128 * 1024 * 1024,
			SyncMode:        wal.SyncBatch,
			BatchIntervalMs: 100,
			BatchSizeBytes:  4 * 1024 * 1024,
		},
		PageConfig: PageConfig{
			Size: 4096,
		},
		PageStoreConfig: PageStoreConfig{
			Engine: EngineLevelDB,
			Dir:    "./data/pages",
		},
	}
}

func mergeConfig(dst *Config, src *Config) {
	if src == nil || dst == nil {
		return
	}

	if src.Debug {
		dst.Debug = true
	}

	if src.WALConfig.Dir != "" {
		dst.WALConfig.Dir = src.WALConfig.Dir
	}
	if src.WALConfig.Name != "" {
		dst.WALConfig.Name = src.WALConfig.Name
	}
	if src.WALConfig.MaxSegmentSize != 0 {
		dst.WALConfig.MaxSegmentSize = src.WALConfig.MaxSegmentSize
	}
	if src.WALConfig.SyncMode != "" {
		dst.WALConfig.SyncMode = src.WALConfig.SyncMode
	}
	if src.WALConfig.BatchIntervalMs != 0 {
		dst.WALConfig.BatchIntervalMs = src.WALConfig.BatchIntervalMs
	}
	if src.WALConfig.BatchSizeBytes != 0 {
		dst.WALConfig.BatchSizeBytes = src.WALConfig.BatchSizeBytes
	}
	if src.WALConfig.SizeLimit != 0 {
		dst.WALConfig.SizeLimit = src.WALConfig.SizeLimit
	}
	if src.WALConfig.SegmentIntervalMs != 0 {
		dst.WALConfig.SegmentIntervalMs = src.WALConfig.SegmentIntervalMs
	}
	if src.WALConfig.KeepSingleSegment {
		dst.WALConfig.KeepSingleSegment = true
	}
	if src.WALConfig.InMemory {
		dst.WALConfig.InMemory = true
	}

	if src.PageConfig.Size != 0 {
		dst.PageConfig.Size = src.PageConfig.Size
	}

	if src.PageStoreConfig.Engine != "" {
		dst.PageStoreConfig.Engine = src.PageStoreConfig.Engine
	}
	if src.PageStoreConfig.Dir != "" {
		dst.PageStoreConfig.Dir = src.PageStoreConfig.Dir
	}
	if src.PageStoreConfig.SyncWrites {
		dst.PageStoreConfig.SyncWrites = true
	}
	if src.PageStoreConfig.CachePages != 0 {
		dst.PageStoreConfig.CachePages = src.PageStoreConfig.CachePages
	}
}
