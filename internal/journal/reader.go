package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/xtxerr/relayhist/internal/errors"
)

// Reader reads batches from one journal segment.
type Reader struct {
	path string
	file *os.File
	buf  *bufio.Reader

	stats ReaderStats
}

// ReaderStats holds journal reader statistics.
type ReaderStats struct {
	BatchesRead      int64
	ObservationsRead int64
	BytesRead        int64
	CorruptRecords   int64
	TornTail         bool
}

// Add accumulates o into s.
func (s *ReaderStats) Add(o ReaderStats) {
	s.BatchesRead += o.BatchesRead
	s.ObservationsRead += o.ObservationsRead
	s.BytesRead += o.BytesRead
	s.CorruptRecords += o.CorruptRecords
	s.TornTail = s.TornTail || o.TornTail
}

// NewReader opens a segment and verifies its header.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("read header: %w: %v", errors.ErrJournalCorrupt, err)
	}

	if magic := binary.LittleEndian.Uint64(header[0:8]); magic != journalMagic {
		f.Close()
		return nil, fmt.Errorf("invalid magic %x: %w", magic, errors.ErrJournalCorrupt)
	}
	if version := binary.LittleEndian.Uint32(header[8:12]); version != journalVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported version %d: %w", version, errors.ErrJournalCorrupt)
	}

	return &Reader{
		path: path,
		file: f,
		buf:  bufio.NewReader(f),
	}, nil
}

// ReadBatch reads the next batch. It returns io.EOF at the end of the
// segment and io.ErrUnexpectedEOF when the segment ends inside a record,
// which is what a crash during Append leaves behind.
func (r *Reader) ReadBatch() (Batch, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r.buf, header[:]); err != nil {
		return Batch{}, err
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	expectedCRC := binary.LittleEndian.Uint32(header[4:8])

	if length > maxRecordSize {
		return Batch{}, fmt.Errorf("record of %d bytes: %w", length, errors.ErrJournalCorrupt)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.buf, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Batch{}, err
	}
	r.stats.BytesRead += int64(recordHeaderSize + len(payload))

	if actual := crc32.ChecksumIEEE(payload); actual != expectedCRC {
		return Batch{}, fmt.Errorf("crc mismatch: expected %x, got %x: %w", expectedCRC, actual, errors.ErrJournalCorrupt)
	}

	b, err := decodeBatch(payload)
	if err != nil {
		return Batch{}, err
	}

	r.stats.BatchesRead++
	r.stats.ObservationsRead += int64(len(b.Observations))
	return b, nil
}

// ReadAll reads every intact batch. Records failing their checksum are
// counted and skipped; a torn final record ends the segment.
func (r *Reader) ReadAll() ([]Batch, error) {
	var batches []Batch
	for {
		b, err := r.ReadBatch()
		switch {
		case err == nil:
			batches = append(batches, b)
		case err == io.EOF:
			return batches, nil
		case err == io.ErrUnexpectedEOF:
			r.stats.TornTail = true
			return batches, nil
		case errors.Is(err, errors.ErrJournalCorrupt):
			// length was read, so the stream is still aligned
			r.stats.CorruptRecords++
		default:
			return batches, err
		}
	}
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Stats returns reader statistics.
func (r *Reader) Stats() ReaderStats {
	return r.stats
}

// Path returns the segment path.
func (r *Reader) Path() string {
	return r.path
}

// ReadSegment reads all batches from a segment file.
func ReadSegment(path string) ([]Batch, ReaderStats, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, ReaderStats{}, err
	}
	defer r.Close()

	batches, err := r.ReadAll()
	return batches, r.Stats(), err
}

// ReadSegments reads all batches from the segments in order.
func ReadSegments(paths []string) ([]Batch, ReaderStats, error) {
	var (
		all   []Batch
		stats ReaderStats
	)
	for _, path := range paths {
		batches, s, err := ReadSegment(path)
		stats.Add(s)
		if err != nil {
			return all, stats, fmt.Errorf("read segment %s: %w", path, err)
		}
		all = append(all, batches...)
	}
	return all, stats, nil
}
