// Package pagestore holds the pages that atomic operations modify and recovery replays into.
// Every stored page carries the LSN of the last log record applied to it, which makes replay
// idempotent: a record whose initial LSN is older than the page LSN was already applied.
package pagestore

import (
	"context"

	"github.com/haorendashu/pagewal/src/types"
)

// Page is a page image and the LSN of the last change applied to it.
type Page struct {
	Data []byte
	LSN  types.LSN
}

// Clone returns a deep copy of p.
func (p *Page) Clone() *Page {
	return &Page{Data: append([]byte(nil), p.Data...), LSN: p.LSN}
}

// Store is the page store consumed by the atomic-operation manager and by recovery.
// Implementations are safe for concurrent use.
type Store interface {
	// CreateFile registers a file. It fails with ErrFileAlreadyExists if the id is taken.
	CreateFile(ctx context.Context, name string, fileID int64) error

	// DeleteFile removes a file and all of its pages.
	DeleteFile(ctx context.Context, fileID int64) error

	// TruncateFile removes all pages of a file and keeps the file.
	TruncateFile(ctx context.Context, fileID int64) error

	// FileExists reports whether fileID is registered.
	FileExists(ctx context.Context, fileID int64) (bool, error)

	// FileName returns the name the file was created with.
	FileName(ctx context.Context, fileID int64) (string, error)

	// LoadPage returns a copy of a stored page, or ErrPageNotFound.
	LoadPage(ctx context.Context, fileID, pageIndex int64) (*Page, error)

	// StorePage writes a page of exactly PageSize bytes into an existing file.
	StorePage(ctx context.Context, fileID, pageIndex int64, page *Page) error

	// PageSize returns the size of every page in the store.
	PageSize() int

	// Flush makes every stored page durable.
	Flush(ctx context.Context) error

	Close() error
}
