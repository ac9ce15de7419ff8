package record

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/pagechanges"
	"github.com/haorendashu/pagewal/src/types"
)

const testPageSize = 4096

func newCodec(t *testing.T) Codec {
	t.Helper()
	codec, err := NewCodec(testPageSize)
	require.NoError(t, err)
	return codec
}

func sampleChanges(t *testing.T) *pagechanges.Set {
	t.Helper()
	changes, err := pagechanges.New(testPageSize)
	require.NoError(t, err)
	changes.SetInt(pagechanges.Unbacked(), 0x01020304, 0)
	changes.SetBinary(pagechanges.Unbacked(), []byte("spans two chunks of the page"), 20)
	return changes
}

// roundTrip marshals r, checks the declared size, decodes it and re-marshals the result.
func roundTrip(t *testing.T, codec Codec, r Record) Record {
	t.Helper()
	payload, err := codec.Marshal(r)
	require.NoError(t, err)
	require.Len(t, payload, codec.Size(r), "declared size of %s", r.Kind())

	decoded, err := codec.Unmarshal(r.Kind(), payload)
	require.NoError(t, err)
	require.Equal(t, r.Kind(), decoded.Kind())

	again, err := codec.Marshal(decoded)
	require.NoError(t, err)
	require.Equal(t, payload, again)
	return decoded
}

func TestRoundTripAllKinds(t *testing.T) {
	codec := newCodec(t)
	changes := sampleChanges(t)

	records := []Record{
		&FileCreated{Unit: 1, FileName: "users.pcl", FileID: 42},
		&FileCreated{Unit: 1, FileName: "", FileID: 0},
		&FileDeleted{Unit: 2, FileID: 42},
		&FileTruncated{Unit: 3, FileID: -7},
		&AtomicUnitStart{Unit: 4, RollbackSupported: true},
		&AtomicUnitStart{Unit: 4},
		&AtomicUnitStartMetadata{Unit: 5, RollbackSupported: true, Metadata: []byte("trace=abc")},
		&AtomicUnitStartMetadata{Unit: 5, Metadata: []byte{}},
		&AtomicUnitEnd{Unit: 6, Rollback: false, Metadata: map[string]OperationMetadata{}},
		&AtomicUnitEnd{Unit: 6, Rollback: true, Metadata: map[string]OperationMetadata{
			RecordIDsKey: NewRecordIDSet(
				types.RecordID{ClusterID: 9, ClusterPosition: 1},
				types.RecordID{ClusterID: 2, ClusterPosition: 1 << 40},
			),
		}},
		&AtomicUnitEnd{Unit: 6, Metadata: map[string]OperationMetadata{RecordIDsKey: NewRecordIDSet()}},
		&HighLevelTransactionChange{Unit: 7, Payload: []byte{0xCA, 0xFE}},
		&HighLevelTransactionChange{Unit: 7, Payload: []byte{}},
		&Metadata{Payload: []byte("engine metadata")},
		&Metadata{Payload: []byte{}},
		&Empty{},
		&UpdatePage{Unit: 8, FileID: 3, PageIndex: 7, InitialLSN: types.NewLSN(2, 24), Changes: changes},
	}

	for _, r := range records {
		t.Run(r.Kind().String(), func(t *testing.T) {
			decoded := roundTrip(t, codec, r)
			if up, ok := r.(*UpdatePage); ok {
				got := decoded.(*UpdatePage)
				assert.True(t, up.Changes.Equal(got.Changes))
				got.Changes, up.Changes = nil, nil
				assert.Equal(t, up, got)
				up.Changes = changes
				return
			}
			assert.Equal(t, r, decoded)
		})
	}
}

func TestAtomicUnitEndNilMetadata(t *testing.T) {
	codec := newCodec(t)
	decoded := roundTrip(t, codec, &AtomicUnitEnd{Unit: 3, Rollback: true})

	end := decoded.(*AtomicUnitEnd)
	assert.NotNil(t, end.Metadata)
	assert.Empty(t, end.Metadata)
	assert.Equal(t, int64(3), end.Unit)
	assert.True(t, end.Rollback)
}

func TestAtomicUnitEndMetadataLayout(t *testing.T) {
	codec := newCodec(t)
	end := &AtomicUnitEnd{Unit: 1, Rollback: false, Metadata: map[string]OperationMetadata{
		RecordIDsKey: NewRecordIDSet(types.RecordID{ClusterID: 5, ClusterPosition: 10}),
	}}

	payload, err := codec.Marshal(end)
	require.NoError(t, err)

	want := binary.BigEndian.AppendUint64(nil, 1)
	want = append(want, 0)                         // rollback
	want = binary.BigEndian.AppendUint32(want, 1)  // entries
	want = append(want, 1)                         // record id key
	want = binary.BigEndian.AppendUint32(want, 1)  // ids
	want = binary.BigEndian.AppendUint64(want, 10) // cluster position
	want = binary.BigEndian.AppendUint32(want, 5)  // cluster id
	assert.Equal(t, want, payload)
}

func TestUnknownMetadataKeyIsFormatError(t *testing.T) {
	codec := newCodec(t)

	_, err := codec.Marshal(&AtomicUnitEnd{Unit: 1, Metadata: map[string]OperationMetadata{
		"not-a-key": NewRecordIDSet(),
	}})
	assert.True(t, errors.IsFormat(err))

	payload := binary.BigEndian.AppendUint64(nil, 1)
	payload = append(payload, 0)
	payload = binary.BigEndian.AppendUint32(payload, 1)
	payload = append(payload, 2)
	_, err = codec.Unmarshal(KindAtomicUnitEnd, payload)
	assert.True(t, errors.IsFormat(err))
}

func TestUnmarshalFormatErrors(t *testing.T) {
	codec := newCodec(t)
	valid, err := codec.Marshal(&FileCreated{Unit: 1, FileName: "f", FileID: 2})
	require.NoError(t, err)

	tests := []struct {
		name    string
		kind    Kind
		payload []byte
	}{
		{"unknown tag", Kind(99), nil},
		{"zero tag", Kind(0), nil},
		{"truncated", KindFileCreated, valid[:len(valid)-1]},
		{"trailing bytes", KindFileCreated, append(append([]byte(nil), valid...), 0)},
		{"name length past end", KindFileCreated, append(binary.BigEndian.AppendUint64(nil, 1), 0x7F, 0, 0, 0)},
		{"empty record with payload", KindEmpty, []byte{1}},
		{"corrupt chunk count", KindUpdatePage, append(make([]byte, 8+8+8+types.LSNSize), 0xFF, 0xFF)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Unmarshal(tt.kind, tt.payload)
			assert.True(t, errors.IsFormat(err), "got %v", err)
		})
	}
}

func TestRecordClassification(t *testing.T) {
	assert.True(t, IsUnitStart(&AtomicUnitStart{}))
	assert.True(t, IsUnitStart(&AtomicUnitStartMetadata{}))
	assert.False(t, IsUnitStart(&AtomicUnitEnd{}))
	assert.True(t, IsBody(&UpdatePage{}))
	assert.True(t, IsBody(&FileDeleted{}))
	assert.False(t, IsBody(&Metadata{}))
	assert.False(t, IsBody(&Empty{}))

	var r Record = &HighLevelTransactionChange{Unit: 12}
	unit, ok := r.(UnitRecord)
	require.True(t, ok)
	assert.Equal(t, int64(12), unit.UnitID())

	_, ok = Record(&Metadata{}).(UnitRecord)
	assert.False(t, ok)
	assert.Equal(t, "Kind(99)", Kind(99).String())
}
