package atomicop

import (
	"context"
	"fmt"
	"sync"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/pagestore"
	"github.com/haorendashu/pagewal/src/record"
	"github.com/haorendashu/pagewal/src/types"
)

type pageRef struct {
	fileID    int64
	pageIndex int64
}

type newFile struct {
	name   string
	fileID int64
}

// Operation collects the changes of one atomic unit until Manager.End commits them.
// An Operation is safe for concurrent use, but its changes become visible in the
// store only after End.
type Operation struct {
	mu sync.Mutex

	manager           *Manager
	unit              int64
	startLSN          types.LSN
	rollbackSupported bool
	rollback          bool
	completed         bool

	created   []newFile
	deleted   []int64
	truncated []int64
	pages     map[pageRef]*PageEditor
	order     []pageRef
	recordIDs record.RecordIDSet
}

// Unit returns the atomic unit id of the operation.
func (o *Operation) Unit() int64 { return o.unit }

// StartLSN returns the LSN of the operation's start record.
func (o *Operation) StartLSN() types.LSN { return o.startLSN }

func (o *Operation) checkLocked() error {
	if o.completed {
		return errors.ErrOperationCompleted
	}
	return nil
}

func (o *Operation) isCreatedLocked(fileID int64) bool {
	for _, f := range o.created {
		if f.fileID == fileID {
			return true
		}
	}
	return false
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// AddFile registers a new file. The file exists in the store once the operation commits.
func (o *Operation) AddFile(ctx context.Context, name string, fileID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkLocked(); err != nil {
		return err
	}
	if o.isCreatedLocked(fileID) {
		return errors.NewFileAlreadyExists(fileID)
	}
	exists, err := o.manager.store.FileExists(ctx, fileID)
	if err != nil {
		return err
	}
	if exists && !containsID(o.deleted, fileID) {
		return errors.NewFileAlreadyExists(fileID)
	}

	o.created = append(o.created, newFile{name: name, fileID: fileID})
	return nil
}

// DeleteFile schedules the deletion of a file and drops the pages this operation changed in it.
func (o *Operation) DeleteFile(ctx context.Context, fileID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkLocked(); err != nil {
		return err
	}

	if o.isCreatedLocked(fileID) {
		created := o.created[:0]
		for _, f := range o.created {
			if f.fileID != fileID {
				created = append(created, f)
			}
		}
		o.created = created
	} else {
		exists, err := o.manager.store.FileExists(ctx, fileID)
		if err != nil {
			return err
		}
		if !exists || containsID(o.deleted, fileID) {
			return errors.NewFileNotFound(fileID)
		}
		o.deleted = append(o.deleted, fileID)
	}

	o.dropPagesLocked(fileID)
	return nil
}

// TruncateFile schedules the removal of every page of a file.
func (o *Operation) TruncateFile(ctx context.Context, fileID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkLocked(); err != nil {
		return err
	}
	if containsID(o.deleted, fileID) {
		return errors.NewFileNotFound(fileID)
	}
	if !o.isCreatedLocked(fileID) && !containsID(o.truncated, fileID) {
		exists, err := o.manager.store.FileExists(ctx, fileID)
		if err != nil {
			return err
		}
		if !exists {
			return errors.NewFileNotFound(fileID)
		}
		o.truncated = append(o.truncated, fileID)
	}

	o.dropPagesLocked(fileID)
	return nil
}

func (o *Operation) dropPagesLocked(fileID int64) {
	order := o.order[:0]
	for _, ref := range o.order {
		if ref.fileID == fileID {
			delete(o.pages, ref)
			continue
		}
		order = append(order, ref)
	}
	o.order = order
}

// LoadPageForWrite returns the editor of a page. Repeated calls for the same page
// return the same editor. A page with no stored image starts out zeroed.
func (o *Operation) LoadPageForWrite(ctx context.Context, fileID, pageIndex int64) (*PageEditor, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkLocked(); err != nil {
		return nil, err
	}

	ref := pageRef{fileID: fileID, pageIndex: pageIndex}
	if editor, ok := o.pages[ref]; ok {
		return editor, nil
	}
	created := o.isCreatedLocked(fileID)
	if !created && containsID(o.deleted, fileID) {
		return nil, errors.NewFileNotFound(fileID)
	}

	var image []byte
	var initialLSN types.LSN
	if !created && !containsID(o.truncated, fileID) {
		page, err := o.manager.store.LoadPage(ctx, fileID, pageIndex)
		switch {
		case err == nil:
			image = page.Data
			initialLSN = page.LSN
		case errors.IsPageNotFound(err):
		default:
			return nil, fmt.Errorf("load page %d of file %d: %w", pageIndex, fileID, err)
		}
	}

	editor, err := newPageEditor(fileID, pageIndex, image, initialLSN, o.manager.store.PageSize())
	if err != nil {
		return nil, err
	}
	if o.pages == nil {
		o.pages = make(map[pageRef]*PageEditor)
	}
	o.pages[ref] = editor
	o.order = append(o.order, ref)
	return editor, nil
}

// AddRecordIDs adds ids to the record-ID set carried by the end record.
func (o *Operation) AddRecordIDs(ids ...types.RecordID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkLocked(); err != nil {
		return err
	}
	if o.recordIDs == nil {
		o.recordIDs = record.NewRecordIDSet()
	}
	for _, id := range ids {
		o.recordIDs.Add(id)
	}
	return nil
}

// MarkRollback makes End discard the operation's changes.
func (o *Operation) MarkRollback() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkLocked(); err != nil {
		return err
	}
	if !o.rollbackSupported {
		return errors.NewUnsupported(fmt.Sprintf("rollback of atomic unit %d", o.unit))
	}
	o.rollback = true
	return nil
}

// RolledBack reports whether the operation was marked for rollback.
func (o *Operation) RolledBack() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rollback
}

func (o *Operation) metadataLocked() map[string]record.OperationMetadata {
	if len(o.recordIDs) == 0 {
		return nil
	}
	return map[string]record.OperationMetadata{record.RecordIDsKey: o.recordIDs}
}

// verifyLocked checks that every page the operation changed still holds the image it
// was loaded from. Pages of files created or truncated by the operation are not checked.
func (o *Operation) verifyLocked(ctx context.Context) error {
	store := o.manager.store

	for _, ref := range o.order {
		editor := o.pages[ref]
		if !editor.changes.HasChanges() || o.isCreatedLocked(ref.fileID) || containsID(o.truncated, ref.fileID) {
			continue
		}

		var current types.LSN
		page, err := store.LoadPage(ctx, ref.fileID, ref.pageIndex)
		switch {
		case err == nil:
			current = page.LSN
		case errors.IsPageNotFound(err):
		default:
			return fmt.Errorf("check page %d of file %d: %w", ref.pageIndex, ref.fileID, err)
		}
		if current != editor.initialLSN {
			return errors.NewPageConflict(ref.fileID, ref.pageIndex, editor.initialLSN, current)
		}
	}
	return nil
}

// logLocked writes the body records and returns the UpdatePage LSN of each changed page.
func (o *Operation) logLocked() (map[pageRef]types.LSN, error) {
	w := o.manager.wal

	for _, fileID := range o.deleted {
		if _, err := w.Log(&record.FileDeleted{Unit: o.unit, FileID: fileID}); err != nil {
			return nil, err
		}
	}
	for _, f := range o.created {
		if _, err := w.Log(&record.FileCreated{Unit: o.unit, FileName: f.name, FileID: f.fileID}); err != nil {
			return nil, err
		}
	}
	for _, fileID := range o.truncated {
		if _, err := w.Log(&record.FileTruncated{Unit: o.unit, FileID: fileID}); err != nil {
			return nil, err
		}
	}

	lsns := make(map[pageRef]types.LSN, len(o.order))
	for _, ref := range o.order {
		editor := o.pages[ref]
		if !editor.changes.HasChanges() {
			continue
		}
		lsn, err := w.Log(&record.UpdatePage{
			Unit:       o.unit,
			FileID:     ref.fileID,
			PageIndex:  ref.pageIndex,
			InitialLSN: editor.initialLSN,
			Changes:    editor.changes,
		})
		if err != nil {
			return nil, err
		}
		lsns[ref] = lsn
	}
	return lsns, nil
}

// applyLocked makes the committed changes visible in the store.
func (o *Operation) applyLocked(ctx context.Context, lsns map[pageRef]types.LSN) error {
	store := o.manager.store

	for _, fileID := range o.deleted {
		if err := store.DeleteFile(ctx, fileID); err != nil {
			return err
		}
	}
	for _, f := range o.created {
		if err := store.CreateFile(ctx, f.name, f.fileID); err != nil {
			return err
		}
	}
	for _, fileID := range o.truncated {
		if err := store.TruncateFile(ctx, fileID); err != nil {
			return err
		}
	}

	for _, ref := range o.order {
		lsn, ok := lsns[ref]
		if !ok {
			continue
		}
		page := &pagestore.Page{Data: o.pages[ref].materialize(), LSN: lsn}
		if err := store.StorePage(ctx, ref.fileID, ref.pageIndex, page); err != nil {
			return fmt.Errorf("store page %d of file %d: %w", ref.pageIndex, ref.fileID, err)
		}
	}
	return nil
}
