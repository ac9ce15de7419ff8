package pagestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/haorendashu/pagewal/src/errors"
)

type pageKey struct {
	fileID    int64
	pageIndex int64
}

// MemoryStore keeps files and pages in maps.
type MemoryStore struct {
	mu       sync.RWMutex
	pageSize int
	files    map[int64]string
	pages    map[pageKey]*Page
}

// NewMemoryStore creates an empty store of pageSize pages.
func NewMemoryStore(pageSize int) *MemoryStore {
	return &MemoryStore{
		pageSize: pageSize,
		files:    make(map[int64]string),
		pages:    make(map[pageKey]*Page),
	}
}

func (s *MemoryStore) CreateFile(ctx context.Context, name string, fileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[fileID]; ok {
		return errors.NewFileAlreadyExists(fileID)
	}
	s.files[fileID] = name
	return nil
}

func (s *MemoryStore) DeleteFile(ctx context.Context, fileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[fileID]; !ok {
		return errors.NewFileNotFound(fileID)
	}
	delete(s.files, fileID)
	s.dropPagesLocked(fileID)
	return nil
}

func (s *MemoryStore) TruncateFile(ctx context.Context, fileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[fileID]; !ok {
		return errors.NewFileNotFound(fileID)
	}
	s.dropPagesLocked(fileID)
	return nil
}

func (s *MemoryStore) dropPagesLocked(fileID int64) {
	for key := range s.pages {
		if key.fileID == fileID {
			delete(s.pages, key)
		}
	}
}

func (s *MemoryStore) FileExists(ctx context.Context, fileID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.files[fileID]
	return ok, nil
}

func (s *MemoryStore) FileName(ctx context.Context, fileID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.files[fileID]
	if !ok {
		return "", errors.NewFileNotFound(fileID)
	}
	return name, nil
}

func (s *MemoryStore) LoadPage(ctx context.Context, fileID, pageIndex int64) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[fileID]; !ok {
		return nil, errors.NewFileNotFound(fileID)
	}
	page, ok := s.pages[pageKey{fileID, pageIndex}]
	if !ok {
		return nil, errors.NewPageNotFound(fileID, pageIndex)
	}
	return page.Clone(), nil
}

func (s *MemoryStore) StorePage(ctx context.Context, fileID, pageIndex int64, page *Page) error {
	if len(page.Data) != s.pageSize {
		return fmt.Errorf("page %d of file %d has %d bytes, want %d", pageIndex, fileID, len(page.Data), s.pageSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[fileID]; !ok {
		return errors.NewFileNotFound(fileID)
	}
	s.pages[pageKey{fileID, pageIndex}] = page.Clone()
	return nil
}

func (s *MemoryStore) PageSize() int { return s.pageSize }

func (s *MemoryStore) Flush(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
