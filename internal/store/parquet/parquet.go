// Package parquet stores each status record as a Parquet file,
// <dir>/<family>/<entity>.parquet, with one row per interval.
package parquet

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/status"
)

const ext = ".parquet"

// Options configures the Parquet writer.
type Options struct {
	Compression CompressionType
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// IntervalRow is one interval in Parquet form. Value holds a counter
// value or a counts total; Vector holds weight components; Keys and
// Counts hold the per-key breakdown in key order.
type IntervalRow struct {
	StartMs int64     `parquet:"start_ms"`
	EndMs   int64     `parquet:"end_ms"`
	Value   float64   `parquet:"value"`
	Vector  []float64 `parquet:"vector,list"`
	Keys    []string  `parquet:"keys,list"`
	Counts  []float64 `parquet:"counts,list"`
}

// IntervalToRow converts an interval to a row.
func IntervalToRow(iv history.Interval) IntervalRow {
	row := IntervalRow{StartMs: iv.Start, EndMs: iv.End}
	switch p := iv.Payload.(type) {
	case history.Counter:
		row.Value = p.Value
	case history.Vector:
		row.Vector = slices.Clone(p)
	case history.Counts:
		row.Value = p.Total
		row.Keys = slices.Sorted(maps.Keys(p.ByKey))
		row.Counts = make([]float64, len(row.Keys))
		for i, k := range row.Keys {
			row.Counts[i] = p.ByKey[k]
		}
	}
	return row
}

// RowToInterval converts a row back to an interval of the given kind.
func RowToInterval(r *IntervalRow, kind history.Kind) (history.Interval, error) {
	iv := history.Interval{Start: r.StartMs, End: r.EndMs}
	switch kind {
	case history.KindVector:
		iv.Payload = history.Vector(slices.Clone(r.Vector))
	case history.KindCounts:
		if len(r.Keys) != len(r.Counts) {
			return iv, errors.NewMalformed("counts", len(r.Counts), fmt.Sprintf("expected %d values", len(r.Keys)))
		}
		c := history.Counts{Total: r.Value}
		if len(r.Keys) > 0 {
			c.ByKey = make(map[string]float64, len(r.Keys))
			for i, k := range r.Keys {
				c.ByKey[k] = r.Counts[i]
			}
		}
		iv.Payload = c
	default:
		iv.Payload = history.Counter{Value: r.Value}
	}
	return iv, nil
}

// Store implements store.Store on Parquet files.
type Store struct {
	dir  string
	opts Options

	mu     sync.RWMutex
	closed bool
}

// New creates a Parquet store rooted at dir.
func New(dir string, opts Options) (*Store, error) {
	if dir == "" {
		return nil, errors.NewMissingField("store.dir")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return &Store{dir: dir, opts: opts}, nil
}

func (s *Store) path(f history.Family, entity string) string {
	return filepath.Join(s.dir, f.String(), entity+ext)
}

// Retrieve implements store.Store.
func (s *Store) Retrieve(ctx context.Context, f history.Family, entity string) (*status.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.ErrStoreClosed
	}

	file, err := os.Open(s.path(f, entity))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(f.String(), entity)
		}
		return nil, errors.NewStoreFailure("retrieve", f.String(), entity, err)
	}
	defer file.Close()

	reader := parquet.NewGenericReader[IntervalRow](file)
	defer reader.Close()

	rows := make([]IntervalRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, errors.NewStoreFailure("retrieve", f.String(), entity, err)
	}

	intervals := make([]history.Interval, 0, n)
	for i := 0; i < n; i++ {
		iv, err := RowToInterval(&rows[i], f.Kind())
		if err != nil {
			return nil, errors.NewStoreFailure("retrieve", f.String(), entity, err)
		}
		intervals = append(intervals, iv)
	}

	h, err := history.FromSorted(intervals)
	if err != nil {
		return nil, errors.NewStoreFailure("retrieve", f.String(), entity, err)
	}
	return status.FromHistory(f, entity, h), nil
}

// Store implements store.Store. The file is written beside its final
// path and renamed into place.
func (s *Store) Store(ctx context.Context, rec *status.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrStoreClosed
	}

	if err := s.write(rec); err != nil {
		return errors.NewStoreFailure("store", rec.Family.String(), rec.Entity, err)
	}
	return nil
}

func (s *Store) write(rec *status.Record) error {
	target := s.path(rec.Family, rec.Entity)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+rec.Entity+".*.tmp")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	h := rec.History()
	rows := make([]IntervalRow, h.Len())
	for i := range rows {
		rows[i] = IntervalToRow(h.At(i))
	}

	writer := parquet.NewGenericWriter[IntervalRow](tmp, parquet.Compression(getCompression(s.opts.Compression)))
	if _, err := writer.Write(rows); err != nil {
		return fail(fmt.Errorf("write rows: %w", err))
	}
	if err := writer.Close(); err != nil {
		return fail(fmt.Errorf("close writer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// List implements store.Lister.
func (s *Store) List(ctx context.Context, f history.Family) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, f.String()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ext {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ext))
	}
	slices.Sort(out)
	return out, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
