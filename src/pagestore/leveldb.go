package pagestore

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/types"
)

// Key layout:
//
//	'f' | fileID(8)               -> file name
//	'p' | fileID(8) | pageIndex(8) -> LSN(12) | page bytes
//	's'                            -> flush marker
const (
	prefixFile  = 'f'
	prefixPage  = 'p'
	flushMarker = 's'
)

// LevelDBOptions configures a LevelDBStore.
type LevelDBOptions struct {
	// Path is the database directory. Empty means in-memory storage.
	Path string

	PageSize int

	// SyncWrites syncs the LevelDB journal on every page write.
	SyncWrites bool

	Logger *slog.Logger
}

// LevelDBStore keeps pages in LevelDB.
type LevelDBStore struct {
	db       *leveldb.DB
	pageSize int
	write    *opt.WriteOptions
	logger   *slog.Logger
}

// OpenLevelDB opens or creates a LevelDB page store.
func OpenLevelDB(opts LevelDBOptions) (*LevelDBStore, error) {
	var db *leveldb.DB
	var err error

	if opts.Path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(opts.Path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open page store at %q: %w", opts.Path, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LevelDBStore{
		db:       db,
		pageSize: opts.PageSize,
		write:    &opt.WriteOptions{Sync: opts.SyncWrites},
		logger:   logger.With("component", "pagestore"),
	}, nil
}

func fileKey(fileID int64) []byte {
	key := make([]byte, 9)
	key[0] = prefixFile
	binary.BigEndian.PutUint64(key[1:], uint64(fileID))
	return key
}

func pagePrefix(fileID int64) []byte {
	key := make([]byte, 9, 17)
	key[0] = prefixPage
	binary.BigEndian.PutUint64(key[1:], uint64(fileID))
	return key
}

func pageKeyBytes(fileID, pageIndex int64) []byte {
	return binary.BigEndian.AppendUint64(pagePrefix(fileID), uint64(pageIndex))
}

func (s *LevelDBStore) has(key []byte) (bool, error) {
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("Has %x: %w", key, err)
	}
	return ok, nil
}

func (s *LevelDBStore) requireFile(fileID int64) error {
	ok, err := s.has(fileKey(fileID))
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewFileNotFound(fileID)
	}
	return nil
}

func (s *LevelDBStore) CreateFile(ctx context.Context, name string, fileID int64) error {
	ok, err := s.has(fileKey(fileID))
	if err != nil {
		return err
	}
	if ok {
		return errors.NewFileAlreadyExists(fileID)
	}
	return s.db.Put(fileKey(fileID), []byte(name), s.write)
}

func (s *LevelDBStore) DeleteFile(ctx context.Context, fileID int64) error {
	if err := s.requireFile(fileID); err != nil {
		return err
	}
	batch, err := s.dropPagesBatch(fileID)
	if err != nil {
		return err
	}
	batch.Delete(fileKey(fileID))
	return s.db.Write(batch, s.write)
}

func (s *LevelDBStore) TruncateFile(ctx context.Context, fileID int64) error {
	if err := s.requireFile(fileID); err != nil {
		return err
	}
	batch, err := s.dropPagesBatch(fileID)
	if err != nil {
		return err
	}
	return s.db.Write(batch, s.write)
}

func (s *LevelDBStore) dropPagesBatch(fileID int64) (*leveldb.Batch, error) {
	batch := new(leveldb.Batch)
	iter := s.db.NewIterator(util.BytesPrefix(pagePrefix(fileID)), nil)
	defer iter.Release()

	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate pages of file %d: %w", fileID, err)
	}
	s.logger.Debug("dropping pages", "file", fileID, "pages", batch.Len())
	return batch, nil
}

func (s *LevelDBStore) FileExists(ctx context.Context, fileID int64) (bool, error) {
	return s.has(fileKey(fileID))
}

func (s *LevelDBStore) FileName(ctx context.Context, fileID int64) (string, error) {
	name, err := s.db.Get(fileKey(fileID), nil)
	if err == leveldb.ErrNotFound {
		return "", errors.NewFileNotFound(fileID)
	}
	if err != nil {
		return "", fmt.Errorf("get file %d: %w", fileID, err)
	}
	return string(name), nil
}

func (s *LevelDBStore) LoadPage(ctx context.Context, fileID, pageIndex int64) (*Page, error) {
	value, err := s.db.Get(pageKeyBytes(fileID, pageIndex), nil)
	if err == leveldb.ErrNotFound {
		if ferr := s.requireFile(fileID); ferr != nil {
			return nil, ferr
		}
		return nil, errors.NewPageNotFound(fileID, pageIndex)
	}
	if err != nil {
		return nil, fmt.Errorf("get page %d of file %d: %w", pageIndex, fileID, err)
	}
	if len(value) != types.LSNSize+s.pageSize {
		return nil, fmt.Errorf("page %d of file %d has %d stored bytes, want %d", pageIndex, fileID, len(value), types.LSNSize+s.pageSize)
	}

	return &Page{
		LSN:  types.ReadLSN(value[:types.LSNSize]),
		Data: value[types.LSNSize:],
	}, nil
}

func (s *LevelDBStore) StorePage(ctx context.Context, fileID, pageIndex int64, page *Page) error {
	if len(page.Data) != s.pageSize {
		return fmt.Errorf("page %d of file %d has %d bytes, want %d", pageIndex, fileID, len(page.Data), s.pageSize)
	}
	if err := s.requireFile(fileID); err != nil {
		return err
	}

	value := make([]byte, types.LSNSize+s.pageSize)
	types.PutLSN(value, page.LSN)
	copy(value[types.LSNSize:], page.Data)
	return s.db.Put(pageKeyBytes(fileID, pageIndex), value, s.write)
}

func (s *LevelDBStore) PageSize() int { return s.pageSize }

// Flush writes a marker with a synced write, which syncs the LevelDB journal.
func (s *LevelDBStore) Flush(ctx context.Context) error {
	if err := s.db.Put([]byte{flushMarker}, nil, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("flush page store: %w", err)
	}
	return nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

var _ Store = (*LevelDBStore)(nil)
