// Package duckdb stores status records in DuckDB tables.
//
// Each record is a row in records plus one row per interval in
// intervals. Store replaces both inside one transaction, so the tables
// carry no key constraint: DuckDB rejects deleting and re-inserting a
// key in the same transaction. Boundaries are BIGINT milliseconds and
// payloads use the status document encoding.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/status"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// DSN is the database path. Empty opens an in-memory database.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// QueryTimeout bounds each Retrieve and Store call.
	QueryTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns: 4,
		QueryTimeout: 30 * time.Second,
	}
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS records (
	family     VARCHAR NOT NULL,
	entity     VARCHAR NOT NULL,
	intervals  INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS intervals (
	family   VARCHAR NOT NULL,
	entity   VARCHAR NOT NULL,
	start_ms BIGINT NOT NULL,
	end_ms   BIGINT NOT NULL,
	payload  VARCHAR NOT NULL
)`,
}

// =============================================================================
// Store
// =============================================================================

// Store implements store.Store on DuckDB.
//
// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	config Config
	mu     sync.RWMutex
	closed bool
}

// New opens the database and creates the schema.
func New(cfg Config) (*Store, error) {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}

	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &Store{db: db, config: cfg}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Retrieve implements store.Store.
func (s *Store) Retrieve(ctx context.Context, f history.Family, entity string) (*status.Record, error) {
	if s.isClosed() {
		return nil, errors.ErrStoreClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	fam := f.String()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT intervals FROM records WHERE family = ? AND entity = ?`, fam, entity).Scan(&count)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(fam, entity)
	}
	if err != nil {
		return nil, errors.NewStoreFailure("retrieve", fam, entity, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT start_ms, end_ms, payload FROM intervals
		 WHERE family = ? AND entity = ?
		 ORDER BY start_ms`, fam, entity)
	if err != nil {
		return nil, errors.NewStoreFailure("retrieve", fam, entity, err)
	}
	defer rows.Close()

	intervals := make([]history.Interval, 0, count)
	for rows.Next() {
		var iv history.Interval
		var payload string
		if err := rows.Scan(&iv.Start, &iv.End, &payload); err != nil {
			return nil, errors.NewStoreFailure("retrieve", fam, entity, err)
		}
		iv.Payload, err = status.DecodePayload(payload, f.Kind())
		if err != nil {
			return nil, errors.NewStoreFailure("retrieve", fam, entity, err)
		}
		intervals = append(intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreFailure("retrieve", fam, entity, err)
	}

	h, err := history.FromSorted(intervals)
	if err != nil {
		return nil, errors.NewStoreFailure("retrieve", fam, entity, err)
	}
	return status.FromHistory(f, entity, h), nil
}

// Store implements store.Store. The record's rows are replaced in one
// transaction.
func (s *Store) Store(ctx context.Context, rec *status.Record) error {
	if s.isClosed() {
		return errors.ErrStoreClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	fam := rec.Family.String()
	h := rec.History()

	err := s.transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM intervals WHERE family = ? AND entity = ?`, fam, rec.Entity); err != nil {
			return fmt.Errorf("delete intervals: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM records WHERE family = ? AND entity = ?`, fam, rec.Entity); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO intervals (family, entity, start_ms, end_ms, payload) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i := 0; i < h.Len(); i++ {
			iv := h.At(i)
			if _, err := stmt.ExecContext(ctx, fam, rec.Entity, iv.Start, iv.End, status.EncodePayload(iv.Payload)); err != nil {
				return fmt.Errorf("insert interval: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (family, entity, intervals, updated_at) VALUES (?, ?, ?, ?)`,
			fam, rec.Entity, h.Len(), time.Now().UTC()); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		return nil
	})
	if err != nil {
		return errors.NewStoreFailure("store", fam, rec.Entity, err)
	}
	return nil
}

// List implements store.Lister.
func (s *Store) List(ctx context.Context, f history.Family) ([]string, error) {
	if s.isClosed() {
		return nil, errors.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity FROM records WHERE family = ? ORDER BY entity`, f.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var entity string
		if err := rows.Scan(&entity); err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

// transaction runs fn in a transaction, rolling back on error or panic.
// The context is checked again before commit so a timed-out call never
// commits.
func (s *Store) transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("context cancelled before commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
