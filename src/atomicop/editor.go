package atomicop

import (
	"github.com/haorendashu/pagewal/src/pagechanges"
	"github.com/haorendashu/pagewal/src/types"
)

// PageEditor is the write view of one page inside an operation. Reads see the
// operation's own changes layered over the stored page image.
type PageEditor struct {
	fileID     int64
	pageIndex  int64
	image      []byte
	initialLSN types.LSN
	changes    *pagechanges.Set
}

func newPageEditor(fileID, pageIndex int64, image []byte, initialLSN types.LSN, pageSize int) (*PageEditor, error) {
	changes, err := pagechanges.New(pageSize)
	if err != nil {
		return nil, err
	}
	return &PageEditor{
		fileID:     fileID,
		pageIndex:  pageIndex,
		image:      image,
		initialLSN: initialLSN,
		changes:    changes,
	}, nil
}

func (e *PageEditor) base() pagechanges.Base {
	if e.image == nil {
		return pagechanges.Unbacked()
	}
	return pagechanges.Backed(e.image)
}

func (e *PageEditor) FileID() int64        { return e.fileID }
func (e *PageEditor) PageIndex() int64     { return e.pageIndex }
func (e *PageEditor) InitialLSN() types.LSN { return e.initialLSN }

// IsNew reports whether the page had no stored image when it was loaded.
func (e *PageEditor) IsNew() bool { return e.image == nil }

// Changes returns the change set collected so far.
func (e *PageEditor) Changes() *pagechanges.Set { return e.changes }

func (e *PageEditor) SetBinary(data []byte, offset int) { e.changes.SetBinary(e.base(), data, offset) }
func (e *PageEditor) SetLong(value int64, offset int)   { e.changes.SetLong(e.base(), value, offset) }
func (e *PageEditor) SetInt(value int32, offset int)    { e.changes.SetInt(e.base(), value, offset) }
func (e *PageEditor) SetShort(value int16, offset int)  { e.changes.SetShort(e.base(), value, offset) }
func (e *PageEditor) SetByte(value byte, offset int)    { e.changes.SetByte(e.base(), value, offset) }

func (e *PageEditor) GetBinary(offset, length int) []byte {
	return e.changes.GetBinary(e.base(), offset, length)
}

func (e *PageEditor) GetLong(offset int) int64  { return e.changes.GetLong(e.base(), offset) }
func (e *PageEditor) GetInt(offset int) int32   { return e.changes.GetInt(e.base(), offset) }
func (e *PageEditor) GetShort(offset int) int16 { return e.changes.GetShort(e.base(), offset) }
func (e *PageEditor) GetByte(offset int) byte   { return e.changes.GetByte(e.base(), offset) }

// MoveData copies length bytes from one page offset to another.
func (e *PageEditor) MoveData(from, to, length int) {
	e.changes.MoveData(e.base(), from, to, length)
}

// materialize returns the page image with every change applied.
func (e *PageEditor) materialize() []byte {
	page := make([]byte, e.changes.PageSize())
	copy(page, e.image)
	e.changes.Apply(page)
	return page
}
