package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/pagechanges"
	"github.com/haorendashu/pagewal/src/wal"
)

// ValidateConfig validates a configuration and returns an error if invalid.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.NewConfigError("config is nil", nil)
	}
	if err := validate(cfg); err != nil {
		return errors.NewConfigError(err.Error(), nil)
	}
	return nil
}

func validate(cfg *Config) error {
	pageSize := cfg.PageConfig.Size
	if pageSize <= 0 || pageSize%pagechanges.PortionSize != 0 || pageSize > pagechanges.MaxPageSize {
		return fmt.Errorf("page.page_size must be a positive multiple of %d up to %d", pagechanges.PortionSize, pagechanges.MaxPageSize)
	}

	if !cfg.WALConfig.InMemory {
		w := cfg.WALConfig
		if w.Dir == "" {
			return fmt.Errorf("wal.dir is required")
		}
		if w.Name == "" || strings.ContainsAny(w.Name, `/\`) {
			return fmt.Errorf("wal.name must be a non-empty file name prefix")
		}
		switch w.SyncMode {
		case wal.SyncAlways, wal.SyncBatch, wal.SyncNever:
		default:
			return fmt.Errorf("wal.sync_mode must be always, batch, or never")
		}
		if w.MaxSegmentSize <= 0 || w.MaxSegmentSize > math.MaxInt32 {
			return fmt.Errorf("wal.max_segment_size must be > 0 and fit in an LSN position")
		}
		if w.BatchIntervalMs <= 0 {
			return fmt.Errorf("wal.batch_interval_ms must be > 0")
		}
		if w.BatchSizeBytes <= 0 {
			return fmt.Errorf("wal.batch_size_bytes must be > 0")
		}
		if w.SizeLimit < 0 {
			return fmt.Errorf("wal.wal_size_limit must be >= 0")
		}
		if w.SegmentIntervalMs < 0 {
			return fmt.Errorf("wal.segment_interval_ms must be >= 0")
		}
	}

	if cfg.PageStoreConfig.CachePages < 0 {
		return fmt.Errorf("page_store.cache_pages must be >= 0")
	}

	switch strings.ToLower(cfg.PageStoreConfig.Engine) {
	case EngineMemory:
	case EngineLevelDB:
		if cfg.PageStoreConfig.Dir == "" {
			return fmt.Errorf("page_store.dir is required for the leveldb engine")
		}
	default:
		return fmt.Errorf("page_store.engine must be memory or leveldb")
	}

	return nil
}
