package record

import (
	"github.com/haorendashu/pagewal/src/types"
)

// RecordIDsKey is the metadata key under which an end record lists the record ids touched by its unit.
// It is the only key the wire form accepts.
const RecordIDsKey = "record-ids"

const recordIDsKeyCode byte = 1

// OperationMetadata is a named value attached to an atomic unit end record.
type OperationMetadata interface {
	Key() string
	isOperationMetadata()
}

// RecordIDSet is the set of client records touched by an atomic unit.
type RecordIDSet map[types.RecordID]struct{}

// NewRecordIDSet creates a set holding ids.
func NewRecordIDSet(ids ...types.RecordID) RecordIDSet {
	s := make(RecordIDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (RecordIDSet) Key() string          { return RecordIDsKey }
func (RecordIDSet) isOperationMetadata() {}

// Add inserts id into the set.
func (s RecordIDSet) Add(id types.RecordID) {
	s[id] = struct{}{}
}

// Contains reports whether id is in the set.
func (s RecordIDSet) Contains(id types.RecordID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s RecordIDSet) Sorted() []types.RecordID {
	ids := make([]types.RecordID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	types.SortRecordIDs(ids)
	return ids
}
