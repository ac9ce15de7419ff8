package record

import (
	"encoding/binary"
	"sort"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/pagechanges"
	"github.com/haorendashu/pagewal/src/types"
)

// Codec serializes record payloads. The page size is needed to decode page change sets,
// whose wire form does not repeat it.
type Codec struct {
	pageSize int
}

// NewCodec creates a codec for logs whose UpdatePage records describe pages of pageSize bytes.
func NewCodec(pageSize int) (Codec, error) {
	if _, err := pagechanges.New(pageSize); err != nil {
		return Codec{}, err
	}
	return Codec{pageSize: pageSize}, nil
}

// PageSize returns the page size the codec decodes change sets with.
func (c Codec) PageSize() int {
	return c.pageSize
}

// Size returns the exact payload size of r, excluding the tag.
func (c Codec) Size(r Record) int {
	switch r := r.(type) {
	case *UpdatePage:
		size := 8 + 8 + 8 + types.LSNSize
		if r.Changes != nil {
			return size + r.Changes.SerializedSize()
		}
		return size + 2
	case *FileCreated:
		return 8 + 4 + len(r.FileName) + 8
	case *FileDeleted, *FileTruncated:
		return 8 + 8
	case *AtomicUnitStart:
		return 8 + 1
	case *AtomicUnitStartMetadata:
		return 8 + 1 + 4 + len(r.Metadata)
	case *AtomicUnitEnd:
		size := 8 + 1 + 4
		for _, value := range r.Metadata {
			if ids, ok := value.(RecordIDSet); ok {
				size += 1 + 4 + len(ids)*12
			}
		}
		return size
	case *HighLevelTransactionChange:
		return 8 + 4 + len(r.Payload)
	case *Metadata:
		return 4 + len(r.Payload)
	case *Empty:
		return 0
	default:
		panic("record: unhandled record type")
	}
}

// Marshal returns the payload of r.
func (c Codec) Marshal(r Record) ([]byte, error) {
	return c.Append(make([]byte, 0, c.Size(r)), r)
}

// Append appends the payload of r to dst.
func (c Codec) Append(dst []byte, r Record) ([]byte, error) {
	switch r := r.(type) {
	case *UpdatePage:
		dst = binary.BigEndian.AppendUint64(dst, uint64(r.Unit))
		dst = binary.BigEndian.AppendUint64(dst, uint64(r.FileID))
		dst = binary.BigEndian.AppendUint64(dst, uint64(r.PageIndex))
		dst = appendLSN(dst, r.InitialLSN)
		if r.Changes == nil {
			return binary.BigEndian.AppendUint16(dst, 0), nil
		}
		start := len(dst)
		dst = append(dst, make([]byte, r.Changes.SerializedSize())...)
		r.Changes.MarshalTo(dst[start:])
		return dst, nil

	case *FileCreated:
		dst = binary.BigEndian.AppendUint64(dst, uint64(r.Unit))
		dst = appendBytes(dst, []byte(r.FileName))
		return binary.BigEndian.AppendUint64(dst, uint64(r.FileID)), nil

	case *FileDeleted:
		dst = binary.BigEndian.AppendUint64(dst, uint64(r.Unit))
		return binary.BigEndian.AppendUint64(dst, uint64(r.FileID)), nil

	case *FileTruncated:
		dst = binary.BigEndian.AppendUint64(dst, uint64(r.Unit))
		return binary.BigEndian.AppendUint64(dst, uint64(r.FileID)), nil

	case *AtomicUnitStart:
		dst = binary.BigEndian.AppendUint64(dst, uint64(r.Unit))
		return appendBool(dst, r.RollbackSupported), nil

	case *AtomicUnitStartMetadata:
		dst = binary.BigEndian.AppendUint64(dst, uint64(r.Unit))
		dst = appendBool(dst, r.RollbackSupported)
		return appendBytes(dst, r.Metadata), nil

	case *AtomicUnitEnd:
		dst = binary.BigEndian.AppendUint64(dst, uint64(r.Unit))
		dst = appendBool(dst, r.Rollback)
		return appendOperationMetadata(dst, r.Metadata)

	case *HighLevelTransactionChange:
		dst = binary.BigEndian.AppendUint64(dst, uint64(r.Unit))
		return appendBytes(dst, r.Payload), nil

	case *Metadata:
		return appendBytes(dst, r.Payload), nil

	case *Empty:
		return dst, nil

	default:
		return nil, errors.NewFormatError("unhandled record type %T", r)
	}
}

// Unmarshal decodes a payload of the given kind. The payload must be consumed exactly.
func (c Codec) Unmarshal(kind Kind, payload []byte) (Record, error) {
	d := &decoder{buf: payload}
	var r Record

	switch kind {
	case KindUpdatePage:
		rec := &UpdatePage{
			Unit:       d.readInt64(),
			FileID:     d.readInt64(),
			PageIndex:  d.readInt64(),
			InitialLSN: d.readLSN(),
		}
		if d.err == nil {
			changes, n, err := pagechanges.Unmarshal(d.buf[d.off:], c.pageSize)
			if err != nil {
				return nil, err
			}
			rec.Changes = changes
			d.off += n
		}
		r = rec

	case KindFileCreated:
		r = &FileCreated{Unit: d.readInt64(), FileName: string(d.readBytes()), FileID: d.readInt64()}

	case KindFileDeleted:
		r = &FileDeleted{Unit: d.readInt64(), FileID: d.readInt64()}

	case KindFileTruncated:
		r = &FileTruncated{Unit: d.readInt64(), FileID: d.readInt64()}

	case KindAtomicUnitStart:
		r = &AtomicUnitStart{Unit: d.readInt64(), RollbackSupported: d.readBool()}

	case KindAtomicUnitStartMetadata:
		r = &AtomicUnitStartMetadata{Unit: d.readInt64(), RollbackSupported: d.readBool(), Metadata: d.readBytes()}

	case KindAtomicUnitEnd:
		rec := &AtomicUnitEnd{Unit: d.readInt64(), Rollback: d.readBool()}
		rec.Metadata = d.readOperationMetadata()
		r = rec

	case KindHighLevelTransactionChange:
		r = &HighLevelTransactionChange{Unit: d.readInt64(), Payload: d.readBytes()}

	case KindMetadata:
		r = &Metadata{Payload: d.readBytes()}

	case KindEmpty:
		r = &Empty{}

	default:
		return nil, errors.NewFormatError("unknown record type tag %d", int32(kind))
	}

	if d.err != nil {
		return nil, d.err
	}
	if d.off != len(d.buf) {
		return nil, errors.NewFormatError("%s record has %d trailing bytes", kind, len(d.buf)-d.off)
	}
	return r, nil
}

func appendLSN(dst []byte, lsn types.LSN) []byte {
	var buf [types.LSNSize]byte
	types.PutLSN(buf[:], lsn)
	return append(dst, buf[:]...)
}

func appendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func appendBytes(dst []byte, b []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

// appendOperationMetadata writes: int32 entries | per entry: byte key code | body.
func appendOperationMetadata(dst []byte, metadata map[string]OperationMetadata) ([]byte, error) {
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	dst = binary.BigEndian.AppendUint32(dst, uint32(len(keys)))
	for _, key := range keys {
		ids, ok := metadata[key].(RecordIDSet)
		if key != RecordIDsKey || !ok {
			return nil, errors.NewFormatError("unknown operation metadata key %q", key)
		}
		dst = append(dst, recordIDsKeyCode)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(ids)))
		for _, id := range ids.Sorted() {
			dst = binary.BigEndian.AppendUint64(dst, uint64(id.ClusterPosition))
			dst = binary.BigEndian.AppendUint32(dst, uint32(id.ClusterID))
		}
	}
	return dst, nil
}

// decoder reads big-endian fields and remembers the first shortage as a format error.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = errors.NewFormatError("record payload truncated: need %d bytes at offset %d, have %d", n, d.off, len(d.buf)-d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) readInt64() int64 {
	if b := d.take(8); b != nil {
		return int64(binary.BigEndian.Uint64(b))
	}
	return 0
}

func (d *decoder) readInt32() int32 {
	if b := d.take(4); b != nil {
		return int32(binary.BigEndian.Uint32(b))
	}
	return 0
}

func (d *decoder) readByte() byte {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) readBool() bool {
	return d.readByte() != 0
}

func (d *decoder) readLSN() types.LSN {
	if b := d.take(types.LSNSize); b != nil {
		return types.ReadLSN(b)
	}
	return types.LSN{}
}

func (d *decoder) readBytes() []byte {
	n := d.readInt32()
	b := d.take(int(n))
	if d.err != nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (d *decoder) readOperationMetadata() map[string]OperationMetadata {
	entries := d.readInt32()
	if d.err != nil {
		return nil
	}
	if entries == 0 {
		return map[string]OperationMetadata{}
	}
	if entries < 0 || int(entries) > len(d.buf)-d.off {
		d.err = errors.NewFormatError("corrupt operation metadata count %d", entries)
		return nil
	}

	metadata := make(map[string]OperationMetadata, entries)
	for i := int32(0); i < entries && d.err == nil; i++ {
		code := d.readByte()
		if d.err != nil {
			break
		}
		if code != recordIDsKeyCode {
			d.err = errors.NewFormatError("unknown operation metadata key code %d", code)
			break
		}
		count := d.readInt32()
		if count < 0 || int(count)*12 > len(d.buf)-d.off {
			d.err = errors.NewFormatError("corrupt record id count %d", count)
			break
		}
		ids := make(RecordIDSet, count)
		for j := int32(0); j < count && d.err == nil; j++ {
			position := d.readInt64()
			cluster := d.readInt32()
			ids.Add(types.RecordID{ClusterID: cluster, ClusterPosition: position})
		}
		metadata[RecordIDsKey] = ids
	}
	return metadata
}
