// Package app assembles the history engine from a configuration: the
// record store, the journal, the compressor and the updater.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xtxerr/relayhist/internal/compress"
	"github.com/xtxerr/relayhist/internal/config"
	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/graph"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/journal"
	"github.com/xtxerr/relayhist/internal/logging"
	"github.com/xtxerr/relayhist/internal/status"
	"github.com/xtxerr/relayhist/internal/store"
	"github.com/xtxerr/relayhist/internal/store/badger"
	"github.com/xtxerr/relayhist/internal/store/duckdb"
	"github.com/xtxerr/relayhist/internal/store/parquet"
	"github.com/xtxerr/relayhist/internal/updater"
	"github.com/xtxerr/relayhist/internal/validation"
)

// App owns the store and journal behind one updater.
type App struct {
	cfg     *config.Config
	store   store.Store
	journal *journal.Writer
	updater *updater.Updater
	log     *slog.Logger
}

// SetupLogging initializes the global logger from cfg.
func SetupLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.Init(level, cfg.Log.JSON)
	return nil
}

// New opens the store and journal named by cfg and builds the updater.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	tables, err := cfg.Tables()
	if err != nil {
		return nil, err
	}
	catalogs, err := cfg.Catalogs()
	if err != nil {
		return nil, err
	}
	c, err := compress.New(tables)
	if err != nil {
		return nil, err
	}

	st, err := OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	a := &App{
		cfg:   cfg,
		store: st,
		log:   logging.Component("app"),
	}

	opts := []updater.Option{
		updater.WithLogger(logging.Component("updater")),
		updater.WithRenderOptions(RenderOptions(cfg)),
	}
	for f, catalog := range catalogs {
		opts = append(opts, updater.WithCatalog(f, catalog))
	}

	if cfg.Journal.Enabled {
		jw, err := journal.Open(cfg.JournalDir(), journal.Options{
			MaxSegmentSize: cfg.Journal.MaxSegmentSize,
			SyncMode:       cfg.Journal.SyncMode,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = jw
		opts = append(opts, updater.WithJournal(jw))
	}

	a.updater, err = updater.New(st, c, updater.Config{
		Workers:     cfg.Updater.Workers,
		LockStripes: cfg.Updater.LockStripes,
	}, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.log.Info("opened",
		"backend", cfg.Store.Backend,
		"path", cfg.StorePath(),
		"journal", cfg.Journal.Enabled)
	return a, nil
}

// OpenStore opens the record store selected by cfg.Store.Backend.
func OpenStore(cfg *config.Config) (store.Store, error) {
	path := cfg.StorePath()

	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), nil

	case "file":
		s, err := store.NewFile(path)
		if err != nil {
			return nil, err
		}
		return s, nil

	case "badger":
		s, err := badger.New(badger.Config{
			Path:        path,
			InMemory:    cfg.Store.Badger.InMemory,
			MaxMemoryMB: cfg.Store.Badger.MaxMemoryMB,
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	case "duckdb":
		dsn := path
		if cfg.Store.DuckDB.InMemory {
			dsn = ""
		}
		s, err := duckdb.New(duckdb.Config{
			DSN:          dsn,
			MaxOpenConns: cfg.Store.DuckDB.MaxOpenConns,
			QueryTimeout: cfg.Store.DuckDB.QueryTimeout.D(),
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	case "parquet":
		s, err := parquet.New(path, parquet.Options{
			Compression: parquet.ParseCompressionType(cfg.Store.Parquet.Compression),
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, errors.NewValidation("store.backend", fmt.Sprintf("unknown backend %q", cfg.Store.Backend))
	}
}

// RenderOptions returns the base render options configured by cfg.
func RenderOptions(cfg *config.Config) graph.Options {
	opts := graph.DefaultOptions()
	opts.Ceiling = cfg.Render.Ceiling
	opts.MinCoveragePercent = cfg.Render.MinCoveragePercent
	opts.RequireAdjacent = cfg.Render.RequireAdjacent
	return opts
}

// Updater returns the assembled updater.
func (a *App) Updater() *updater.Updater {
	return a.updater
}

// Ingest replays leftover journal batches, then ingests raw as of now.
// The whole call is bounded by the configured cycle timeout.
func (a *App) Ingest(ctx context.Context, now int64, raw []status.RawObservation) (updater.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CycleTimeout())
	defer cancel()

	if _, err := a.updater.Replay(ctx, now); err != nil {
		return updater.Report{}, fmt.Errorf("replay: %w", err)
	}
	return a.updater.Ingest(ctx, now, raw)
}

// Replay applies leftover journal batches as of now.
func (a *App) Replay(ctx context.Context, now int64) (updater.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CycleTimeout())
	defer cancel()

	return a.updater.Replay(ctx, now)
}

// Render renders the graphs of one record as of now.
func (a *App) Render(ctx context.Context, family, entity string, now int64) ([]graph.Graph, error) {
	f, err := history.ParseFamily(family)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownFamily, family)
	}
	if err := validation.ValidateEntity(entity); err != nil {
		return nil, errors.NewMalformed("entity", entity, err.Error())
	}
	return a.updater.Render(ctx, f, entity, now)
}

// Entities lists the stored entities of a family.
func (a *App) Entities(ctx context.Context, family string) ([]string, error) {
	f, err := history.ParseFamily(family)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownFamily, family)
	}
	return a.updater.Entities(ctx, f)
}

// Close closes the journal and the store.
func (a *App) Close() error {
	var errs []error
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Now returns the current time in Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}
