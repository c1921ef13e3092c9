package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/status"
)

// File stores one status document per record under
// <dir>/<family>/<entity>. Writes go to a temporary file that is renamed
// into place, so readers never see a partial document.
type File struct {
	dir string

	mu     sync.RWMutex
	closed bool
}

// NewFile creates a file store rooted at dir.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.NewMissingField("store.dir")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (s *File) path(f history.Family, entity string) string {
	return filepath.Join(s.dir, f.String(), entity)
}

// Retrieve implements Store.
func (s *File) Retrieve(ctx context.Context, f history.Family, entity string) (*status.Record, error) {
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

	return status.Decode(file, f, entity, nil)
}

// Store implements Store.
func (s *File) Store(ctx context.Context, rec *status.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.ErrStoreClosed
	}

	fam := rec.Family.String()
	target := s.path(rec.Family, rec.Entity)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.NewStoreFailure("store", fam, rec.Entity, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+rec.Entity+".*.tmp")
	if err != nil {
		return errors.NewStoreFailure("store", fam, rec.Entity, err)
	}
	tmpName := tmp.Name()

	if err := status.Encode(tmp, rec); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewStoreFailure("store", fam, rec.Entity, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewStoreFailure("store", fam, rec.Entity, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewStoreFailure("store", fam, rec.Entity, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return errors.NewStoreFailure("store", fam, rec.Entity, err)
	}
	return nil
}

// List implements Lister.
func (s *File) List(ctx context.Context, f history.Family) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, f.String()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, e.Name())
	}
	return sortStrings(out), nil
}

// Close implements Store.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sortStrings(s []string) []string {
	slices.Sort(s)
	return s
}
