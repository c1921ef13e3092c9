// Package badger stores status records in a BadgerDB key-value store,
// one key per record holding its status document.
package badger

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/logging"
	"github.com/xtxerr/relayhist/internal/status"
)

const keyPrefix = "status/"

// Store implements store.Store on BadgerDB.
type Store struct {
	db     *badger.DB
	closed atomic.Bool
}

// Config holds BadgerDB configuration.
type Config struct {
	// Path to the database directory.
	Path string

	// InMemory runs without touching disk (tests).
	InMemory bool

	// MaxMemoryMB bounds the memtable and caches (0 = 48 MB total).
	MaxMemoryMB int64
}

// New opens a BadgerDB store.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	memTableSize := int64(16 << 20)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB << 20 / 3
	}

	// Status documents are small and rewritten whole; keep one version and
	// bound every cache so a long-running updater stays flat.
	opts = opts.
		WithLogger(nil).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Store{db: db}, nil
}

func makeKey(f history.Family, entity string) []byte {
	return []byte(keyPrefix + status.Key(f, entity))
}

// Retrieve implements store.Store.
func (s *Store) Retrieve(ctx context.Context, f history.Family, entity string) (*status.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}

	var doc []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeKey(f, entity))
		if err != nil {
			return err
		}
		doc, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, errors.NewNotFound(f.String(), entity)
	}
	if err != nil {
		return nil, errors.NewStoreFailure("retrieve", f.String(), entity, err)
	}

	return status.Unmarshal(doc, f, entity, logging.Component("store.badger"))
}

// Store implements store.Store.
func (s *Store) Store(ctx context.Context, rec *status.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return errors.ErrStoreClosed
	}

	doc := status.Marshal(rec)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(makeKey(rec.Family, rec.Entity), doc)
	})
	if err != nil {
		return errors.NewStoreFailure("store", rec.Family.String(), rec.Entity, err)
	}
	return nil
}

// List implements store.Lister.
func (s *Store) List(ctx context.Context, f history.Family) ([]string, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}

	prefix := []byte(keyPrefix + f.String() + "/")
	var out []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			n++
			if n%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			out = append(out, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
