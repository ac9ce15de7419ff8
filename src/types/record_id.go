package types

import (
	"fmt"
	"sort"
)

// RecordID identifies a client record touched by an atomic operation.
// It is carried in the end record metadata for replication and conflict resolution;
// redo never looks at it.
type RecordID struct {
	// ClusterID is the id of the cluster (collection) holding the record.
	ClusterID int32

	// ClusterPosition is the record's position inside its cluster.
	ClusterPosition int64
}

func (r RecordID) String() string {
	return fmt.Sprintf("#%d:%d", r.ClusterID, r.ClusterPosition)
}

// Compare orders record ids by cluster id, then by position.
func (r RecordID) Compare(other RecordID) int {
	switch {
	case r.ClusterID < other.ClusterID:
		return -1
	case r.ClusterID > other.ClusterID:
		return 1
	case r.ClusterPosition < other.ClusterPosition:
		return -1
	case r.ClusterPosition > other.ClusterPosition:
		return 1
	default:
		return 0
	}
}

// SortRecordIDs sorts ids in place in ascending order.
func SortRecordIDs(ids []RecordID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Compare(ids[j]) < 0
	})
}
