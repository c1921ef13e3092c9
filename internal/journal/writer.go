// Package journal implements the ingest write-ahead log.
//
// Every Ingest appends its parsed observations as one batch before any
// record is touched. After a crash the batches are replayed; merging is
// idempotent, so batches that already reached the store are no-ops.
//
// File format (little-endian):
//
//	segment header: 8 bytes magic + 4 bytes version
//	record:         4 bytes length + 4 bytes crc32 + payload
//
// The payload is an encoded Batch.
package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/xtxerr/relayhist/internal/errors"
)

// Writer appends batches to journal segments.
type Writer struct {
	mu sync.Mutex

	dir            string
	currentSegment *os.File
	currentPath    string
	currentSize    int64
	segmentSeq     int64
	writer         *bufio.Writer
	closed         bool

	opts  Options
	stats WriterStats
}

// Sync modes.
const (
	SyncAsync = "async" // flush on Sync, Rotate and Close
	SyncFlush = "sync"  // flush after every batch
	SyncFsync = "fsync" // flush and fsync after every batch
)

// Options configures the journal writer.
type Options struct {
	// MaxSegmentSize is the size after which a new segment is started.
	MaxSegmentSize int64

	// SyncMode is one of SyncAsync, SyncFlush or SyncFsync.
	SyncMode string

	// BufferSize is the write buffer size.
	BufferSize int
}

// DefaultOptions returns default journal options.
func DefaultOptions() Options {
	return Options{
		MaxSegmentSize: 64 * 1024 * 1024,
		SyncMode:       SyncFsync,
		BufferSize:     64 * 1024,
	}
}

// WriterStats holds journal writer statistics.
type WriterStats struct {
	BatchesWritten  int64
	BytesWritten    int64
	SegmentsCreated int64
	SegmentsRemoved int64
	SyncsPerformed  int64
	Errors          int64
}

const (
	journalMagic     = 0x524C484A524E0001 // "RLHJRN" + version 1
	journalVersion   = 1
	headerSize       = 12 // 8 bytes magic + 4 bytes version
	recordHeaderSize = 8  // 4 bytes length + 4 bytes crc
	segmentExt       = ".jnl"
	maxRecordSize    = 64 * 1024 * 1024
)

// Open opens a journal in dir, starting a fresh segment after any
// existing ones.
func Open(dir string, opts Options) (*Writer, error) {
	def := DefaultOptions()
	if opts.MaxSegmentSize <= 0 {
		opts.MaxSegmentSize = def.MaxSegmentSize
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.SyncMode == "" {
		opts.SyncMode = def.SyncMode
	}
	switch opts.SyncMode {
	case SyncAsync, SyncFlush, SyncFsync:
	default:
		return nil, errors.NewValidation("journal.sync_mode", fmt.Sprintf("unknown mode %q", opts.SyncMode))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	w := &Writer{
		dir:  dir,
		opts: opts,
	}

	segments, err := listSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	if len(segments) > 0 {
		w.segmentSeq = segments[len(segments)-1].seq + 1
	}

	if err := w.rotateUnlocked(); err != nil {
		return nil, fmt.Errorf("create initial segment: %w", err)
	}

	return w, nil
}

// Append writes one batch. Empty batches are ignored.
func (w *Writer) Append(b Batch) error {
	if len(b.Observations) == 0 {
		return nil
	}

	payload := encodeBatch(b)
	if len(payload) > maxRecordSize {
		return fmt.Errorf("batch of %d bytes exceeds record limit", len(payload))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.ErrJournalClosed
	}

	recordSize := int64(recordHeaderSize + len(payload))
	if w.currentSize > headerSize && w.currentSize+recordSize > w.opts.MaxSegmentSize {
		if err := w.rotateUnlocked(); err != nil {
			w.stats.Errors++
			return fmt.Errorf("rotate segment: %w", err)
		}
	}

	if err := w.writeRecord(payload); err != nil {
		w.stats.Errors++
		return fmt.Errorf("write record: %w", err)
	}

	w.stats.BatchesWritten++
	w.stats.BytesWritten += recordSize

	if w.opts.SyncMode != SyncAsync {
		if err := w.syncUnlocked(); err != nil {
			w.stats.Errors++
			return fmt.Errorf("sync: %w", err)
		}
	}

	return nil
}

func (w *Writer) writeRecord(payload []byte) error {
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))

	if _, err := w.writer.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.writer.Write(payload); err != nil {
		return err
	}

	w.currentSize += int64(recordHeaderSize + len(payload))
	return nil
}

// Sync flushes buffered batches to the segment file.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.ErrJournalClosed
	}
	return w.syncUnlocked()
}

func (w *Writer) syncUnlocked() error {
	if w.writer == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if w.opts.SyncMode == SyncFsync {
		if err := w.currentSegment.Sync(); err != nil {
			return err
		}
	}
	w.stats.SyncsPerformed++
	return nil
}

// Rotate closes the current segment and starts a new one.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.ErrJournalClosed
	}
	return w.rotateUnlocked()
}

func (w *Writer) rotateUnlocked() error {
	if w.currentSegment != nil {
		if err := w.writer.Flush(); err != nil {
			return fmt.Errorf("flush segment: %w", err)
		}
		if err := w.currentSegment.Close(); err != nil {
			return fmt.Errorf("close segment: %w", err)
		}
		w.currentSegment = nil
	}

	path := filepath.Join(w.dir, segmentName(w.segmentSeq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create segment %s: %w", path, err)
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[0:8], journalMagic)
	binary.LittleEndian.PutUint32(header[8:12], journalVersion)

	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write header: %w", err)
	}

	w.currentSegment = f
	w.currentPath = path
	w.currentSize = headerSize
	w.writer = bufio.NewWriterSize(f, w.opts.BufferSize)
	w.segmentSeq++
	w.stats.SegmentsCreated++

	return nil
}

// Segments flushes pending batches and returns all segment paths,
// oldest first. The current segment is included.
func (w *Writer) Segments() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, errors.ErrJournalClosed
	}
	if err := w.writer.Flush(); err != nil {
		return nil, fmt.Errorf("flush segment: %w", err)
	}

	segments, err := listSegments(w.dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(segments))
	for i, s := range segments {
		paths[i] = s.path
	}
	return paths, nil
}

// Truncate starts a new segment and removes every older one. It returns
// the number of segments removed.
func (w *Writer) Truncate() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, errors.ErrJournalClosed
	}

	if err := w.rotateUnlocked(); err != nil {
		return 0, fmt.Errorf("rotate segment: %w", err)
	}

	segments, err := listSegments(w.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, s := range segments {
		if s.path == w.currentPath {
			continue
		}
		if err := os.Remove(s.path); err != nil {
			w.stats.Errors++
			return removed, fmt.Errorf("remove segment: %w", err)
		}
		removed++
	}
	w.stats.SegmentsRemoved += int64(removed)
	return removed, nil
}

// Close flushes and closes the current segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.syncUnlocked(); err != nil {
		w.currentSegment.Close()
		return err
	}
	return w.currentSegment.Close()
}

// Stats returns writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Dir returns the journal directory.
func (w *Writer) Dir() string {
	return w.dir
}

type segmentInfo struct {
	path string
	seq  int64
}

func segmentName(seq int64) string {
	return fmt.Sprintf("%016d%s", seq, segmentExt)
}

// listSegments returns all segment files in dir in sequence order.
func listSegments(dir string) ([]segmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var segments []segmentInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if len(name) != 16+len(segmentExt) || name[16:] != segmentExt {
			continue
		}

		seq, err := strconv.ParseInt(name[:16], 10, 64)
		if err != nil {
			continue
		}

		segments = append(segments, segmentInfo{
			path: filepath.Join(dir, name),
			seq:  seq,
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].seq < segments[j].seq
	})

	return segments, nil
}
