// Package record defines the records written to the write-ahead log.
//
// Record is a closed set: every concrete type lives in this package and is marked by an
// unexported method, so serialization, replay and tooling can switch over the types
// exhaustively. Each record is tagged with a Kind on the wire.
package record

import (
	"fmt"

	"github.com/haorendashu/pagewal/src/pagechanges"
	"github.com/haorendashu/pagewal/src/types"
)

// Kind is the wire tag identifying a record's concrete type.
type Kind int32

const (
	// KindUpdatePage carries the change set of one page.
	KindUpdatePage Kind = iota + 1

	// KindFileCreated records the creation of a data file.
	KindFileCreated

	// KindFileDeleted records the deletion of a data file.
	KindFileDeleted

	// KindFileTruncated records the truncation of a data file to zero pages.
	KindFileTruncated

	// KindAtomicUnitStart opens an atomic unit.
	KindAtomicUnitStart

	// KindAtomicUnitStartMetadata opens an atomic unit and carries opaque metadata.
	KindAtomicUnitStartMetadata

	// KindAtomicUnitEnd closes an atomic unit, committing or rolling it back.
	KindAtomicUnitEnd

	// KindHighLevelTransactionChange carries a serialized client transaction.
	KindHighLevelTransactionChange

	// KindMetadata carries engine metadata not tied to any atomic unit.
	KindMetadata

	// KindEmpty is written by the engine on open and at the start of each segment.
	KindEmpty
)

var kindNames = map[Kind]string{
	KindUpdatePage:                 "UpdatePage",
	KindFileCreated:                "FileCreated",
	KindFileDeleted:                "FileDeleted",
	KindFileTruncated:              "FileTruncated",
	KindAtomicUnitStart:            "AtomicUnitStart",
	KindAtomicUnitStartMetadata:    "AtomicUnitStartMetadata",
	KindAtomicUnitEnd:              "AtomicUnitEnd",
	KindHighLevelTransactionChange: "HighLevelTransactionChange",
	KindMetadata:                   "Metadata",
	KindEmpty:                      "Empty",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int32(k))
}

// Valid reports whether k is a known record kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Record is a loggable event. The concrete types are listed in this package.
type Record interface {
	Kind() Kind
	isRecord()
}

// UnitRecord is a record that belongs to an atomic unit.
type UnitRecord interface {
	Record
	UnitID() int64
}

// UpdatePage carries the changes made to page PageIndex of file FileID.
// InitialLSN is the page's LSN before the change and lets replay skip pages that already hold it.
type UpdatePage struct {
	Unit       int64
	FileID     int64
	PageIndex  int64
	InitialLSN types.LSN
	Changes    *pagechanges.Set
}

// FileCreated records that FileName was created with id FileID.
type FileCreated struct {
	Unit     int64
	FileName string
	FileID   int64
}

// FileDeleted records the deletion of file FileID.
type FileDeleted struct {
	Unit   int64
	FileID int64
}

// FileTruncated records that file FileID lost all of its pages.
type FileTruncated struct {
	Unit   int64
	FileID int64
}

// AtomicUnitStart opens atomic unit Unit.
type AtomicUnitStart struct {
	Unit              int64
	RollbackSupported bool
}

// AtomicUnitStartMetadata opens atomic unit Unit with an opaque metadata blob.
type AtomicUnitStartMetadata struct {
	Unit              int64
	RollbackSupported bool
	Metadata          []byte
}

// AtomicUnitEnd closes atomic unit Unit. When Rollback is set, none of the unit's
// body records may be applied during replay.
type AtomicUnitEnd struct {
	Unit     int64
	Rollback bool

	// Metadata is encoded as an entry count, so nil and empty maps share one form.
	// A decoded record always carries a non-nil map.
	Metadata map[string]OperationMetadata
}

// HighLevelTransactionChange carries a serialized client-visible transaction.
type HighLevelTransactionChange struct {
	Unit    int64
	Payload []byte
}

// Metadata carries opaque engine metadata outside of any atomic unit.
type Metadata struct {
	Payload []byte
}

// Empty has no payload.
type Empty struct{}

func (*UpdatePage) Kind() Kind                 { return KindUpdatePage }
func (*FileCreated) Kind() Kind                { return KindFileCreated }
func (*FileDeleted) Kind() Kind                { return KindFileDeleted }
func (*FileTruncated) Kind() Kind              { return KindFileTruncated }
func (*AtomicUnitStart) Kind() Kind            { return KindAtomicUnitStart }
func (*AtomicUnitStartMetadata) Kind() Kind    { return KindAtomicUnitStartMetadata }
func (*AtomicUnitEnd) Kind() Kind              { return KindAtomicUnitEnd }
func (*HighLevelTransactionChange) Kind() Kind { return KindHighLevelTransactionChange }
func (*Metadata) Kind() Kind                   { return KindMetadata }
func (*Empty) Kind() Kind                      { return KindEmpty }

func (*UpdatePage) isRecord()                 {}
func (*FileCreated) isRecord()                {}
func (*FileDeleted) isRecord()                {}
func (*FileTruncated) isRecord()              {}
func (*AtomicUnitStart) isRecord()            {}
func (*AtomicUnitStartMetadata) isRecord()    {}
func (*AtomicUnitEnd) isRecord()              {}
func (*HighLevelTransactionChange) isRecord() {}
func (*Metadata) isRecord()                   {}
func (*Empty) isRecord()                      {}

func (r *UpdatePage) UnitID() int64                 { return r.Unit }
func (r *FileCreated) UnitID() int64                { return r.Unit }
func (r *FileDeleted) UnitID() int64                { return r.Unit }
func (r *FileTruncated) UnitID() int64              { return r.Unit }
func (r *AtomicUnitStart) UnitID() int64            { return r.Unit }
func (r *AtomicUnitStartMetadata) UnitID() int64    { return r.Unit }
func (r *AtomicUnitEnd) UnitID() int64              { return r.Unit }
func (r *HighLevelTransactionChange) UnitID() int64 { return r.Unit }

// IsUnitStart reports whether r opens an atomic unit.
func IsUnitStart(r Record) bool {
	switch r.(type) {
	case *AtomicUnitStart, *AtomicUnitStartMetadata:
		return true
	}
	return false
}

// IsBody reports whether r is a body record of an atomic unit.
func IsBody(r Record) bool {
	switch r.(type) {
	case *UpdatePage, *FileCreated, *FileDeleted, *FileTruncated, *HighLevelTransactionChange:
		return true
	}
	return false
}
