package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/haorendashu/pagewal/src/errors"
	"github.com/haorendashu/pagewal/src/record"
)

const (
	segmentHeaderSize = 24
	segmentMagic      = 0x50574C31
	segmentVersion    = 1
	segmentExt        = ".wal"

	frameHeaderSize   = 8
	frameChecksumSize = 8
	frameOverhead     = frameHeaderSize + frameChecksumSize
	maxPayloadSize    = 64 * 1024 * 1024
)

// appendFrame appends one record frame to dst.
//
// Format:
//
//	tag(4) | payload_len(4) | payload | xxhash64(tag..payload)(8)
func appendFrame(dst []byte, codec record.Codec, r record.Record) ([]byte, error) {
	start := len(dst)
	dst = binary.BigEndian.AppendUint32(dst, uint32(r.Kind()))
	dst = binary.BigEndian.AppendUint32(dst, 0)

	dst, err := codec.Append(dst, r)
	if err != nil {
		return nil, err
	}
	payloadLen := len(dst) - start - frameHeaderSize
	if payloadLen > maxPayloadSize {
		return nil, fmt.Errorf("WAL record too large: %d bytes (max %d)", payloadLen, maxPayloadSize)
	}
	binary.BigEndian.PutUint32(dst[start+4:], uint32(payloadLen))

	checksum := xxhash.Sum64(dst[start:])
	return binary.BigEndian.AppendUint64(dst, checksum), nil
}

// frame is a frame read from a segment, before its payload is decoded.
type frame struct {
	kind    record.Kind
	payload []byte
	size    int
}

// errTornFrame marks a frame that is incomplete or fails its checksum.
var errTornFrame = errors.NewWALError("torn or corrupt frame", nil)

// readFrameAt reads the frame starting at pos. It returns io.EOF when pos is the end of the file
// and errTornFrame when the bytes at pos are not a complete, valid frame.
func readFrameAt(f *os.File, pos int64) (*frame, error) {
	var header [frameHeaderSize]byte
	n, err := f.ReadAt(header[:], pos)
	if n == 0 && err == io.EOF {
		return nil, io.EOF
	}
	if n < frameHeaderSize {
		if err == io.EOF {
			return nil, errTornFrame
		}
		return nil, fmt.Errorf("read frame header at %d: %w", pos, err)
	}

	payloadLen := int(binary.BigEndian.Uint32(header[4:8]))
	if payloadLen > maxPayloadSize {
		return nil, errTornFrame
	}

	body := make([]byte, frameHeaderSize+payloadLen+frameChecksumSize)
	copy(body, header[:])
	n, err = f.ReadAt(body[frameHeaderSize:], pos+frameHeaderSize)
	if n < len(body)-frameHeaderSize {
		if err == io.EOF {
			return nil, errTornFrame
		}
		return nil, fmt.Errorf("read frame at %d: %w", pos, err)
	}

	sumAt := frameHeaderSize + payloadLen
	if xxhash.Sum64(body[:sumAt]) != binary.BigEndian.Uint64(body[sumAt:]) {
		return nil, errTornFrame
	}

	return &frame{
		kind:    record.Kind(int32(binary.BigEndian.Uint32(header[0:4]))),
		payload: body[frameHeaderSize:sumAt],
		size:    len(body),
	}, nil
}

// segmentHeader is the fixed-size header at the start of every segment file.
//
// Format:
//
//	magic(4) | version(4) | segment_id(8) | reserved(8)
func encodeSegmentHeader(segment int64) []byte {
	header := make([]byte, segmentHeaderSize)
	binary.BigEndian.PutUint32(header[0:], segmentMagic)
	binary.BigEndian.PutUint32(header[4:], segmentVersion)
	binary.BigEndian.PutUint64(header[8:], uint64(segment))
	return header
}

func readSegmentHeader(f *os.File) (int64, error) {
	header := make([]byte, segmentHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return 0, fmt.Errorf("read segment header: %w", err)
	}
	if magic := binary.BigEndian.Uint32(header[0:4]); magic != segmentMagic {
		return 0, errors.NewFormatError("invalid WAL segment magic 0x%X", magic)
	}
	if version := binary.BigEndian.Uint32(header[4:8]); version != segmentVersion {
		return 0, errors.NewFormatError("unsupported WAL segment version %d", version)
	}
	return int64(binary.BigEndian.Uint64(header[8:16])), nil
}

type walSegment struct {
	id   int64
	path string
}

func segmentPath(dir, name string, id int64) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%d%s", name, id, segmentExt))
}

// listSegments returns the segments of log name in dir, sorted by id.
func listSegments(dir, name string) ([]walSegment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	prefix := name + "."
	var segments []walSegment
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()
		if !strings.HasPrefix(fileName, prefix) || !strings.HasSuffix(fileName, segmentExt) {
			continue
		}
		idStr := strings.TrimSuffix(strings.TrimPrefix(fileName, prefix), segmentExt)
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		segments = append(segments, walSegment{id: id, path: filepath.Join(dir, fileName)})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].id < segments[j].id
	})
	return segments, nil
}

// scanSegmentEnd walks the frames of a segment file and returns the offset just past the
// last valid frame, the number of valid frames and the file size.
func scanSegmentEnd(path string) (validEnd int64, frames int, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("stat segment: %w", err)
	}
	size = stat.Size()

	if _, err := readSegmentHeader(f); err != nil {
		return 0, 0, size, err
	}

	pos := int64(segmentHeaderSize)
	for {
		fr, err := readFrameAt(f, pos)
		if err == io.EOF || err == errTornFrame {
			return pos, frames, size, nil
		}
		if err != nil {
			return pos, frames, size, err
		}
		pos += int64(fr.size)
		frames++
	}
}
