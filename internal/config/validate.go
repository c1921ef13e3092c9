package config

import (
	"fmt"
	"time"

	"github.com/xtxerr/relayhist/internal/compress"
	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/graph"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/logging"
)

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.NewMissingField("data_dir"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, errors.NewValidation("log.level", err.Error()))
	}

	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}

	if err := c.Journal.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("journal: %w", err))
	}

	if err := c.Updater.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("updater: %w", err))
	}

	if err := c.Render.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("render: %w", err))
	}

	if _, err := c.Tables(); err != nil {
		errs = append(errs, fmt.Errorf("families: %w", err))
	}

	if _, err := c.Catalogs(); err != nil {
		errs = append(errs, fmt.Errorf("families: %w", err))
	}

	if c.Scale.Relays < 0 {
		errs = append(errs, errors.NewValidation("scale.relays", "must be non-negative"))
	}
	if c.Scale.HistoryAge < 0 {
		errs = append(errs, errors.NewValidation("scale.history_age", "must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks the store configuration.
func (c *StoreConfig) Validate() error {
	v := errors.NewValidationErrors()

	switch c.Backend {
	case "memory", "file", "badger", "duckdb", "parquet":
	default:
		v.AddField("backend", fmt.Sprintf("%q is not one of memory, file, badger, duckdb, parquet", c.Backend))
	}

	if c.Badger.MaxMemoryMB < 0 {
		v.AddField("badger.max_memory_mb", "must be non-negative")
	}

	if c.DuckDB.MaxOpenConns < 0 {
		v.AddField("duckdb.max_open_conns", "must be non-negative")
	}
	if c.DuckDB.QueryTimeout <= 0 {
		v.AddField("duckdb.query_timeout", "must be positive")
	}

	switch c.Parquet.Compression {
	case "", "none", "snappy", "zstd", "gzip":
	default:
		v.AddField("parquet.compression", fmt.Sprintf("%q is not one of none, snappy, zstd, gzip", c.Parquet.Compression))
	}

	return v.Err()
}

// Validate checks the journal configuration.
func (c *JournalConfig) Validate() error {
	v := errors.NewValidationErrors()

	switch c.SyncMode {
	case "", "async", "sync", "fsync":
	default:
		v.AddField("sync_mode", fmt.Sprintf("%q is not one of async, sync, fsync", c.SyncMode))
	}

	if c.MaxSegmentSize < 0 {
		v.AddField("max_segment_size", "must be non-negative")
	}

	return v.Err()
}

// Validate checks the updater configuration.
func (c *UpdaterConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.Workers <= 0 {
		v.AddField("workers", "must be positive")
	}
	if c.LockStripes <= 0 {
		v.AddField("lock_stripes", "must be positive")
	}
	if c.CycleTimeout <= 0 {
		v.AddField("cycle_timeout", "must be positive")
	}

	return v.Err()
}

// Validate checks the render configuration.
func (c *RenderConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.Ceiling <= 0 {
		v.AddField("ceiling", "must be positive")
	}
	if c.MinCoveragePercent < 0 || c.MinCoveragePercent > 100 {
		v.AddField("min_coverage_percent", "must be between 0 and 100")
	}

	return v.Err()
}

// Tables returns the compression tier table of every family, built-in
// defaults overridden by configured tiers.
func (c *Config) Tables() (map[history.Family]compress.Table, error) {
	tables := compress.DefaultTables()
	var errs []error

	for name, fc := range c.Families {
		f, err := history.ParseFamily(name)
		if err != nil {
			errs = append(errs, errors.NewValidation("family", err.Error()))
			continue
		}
		if len(fc.Tiers) == 0 {
			if fc.DefaultWidth != 0 {
				t := tables[f]
				t.Default = fc.DefaultWidth.D()
				tables[f] = t
			}
			continue
		}
		if fc.DefaultWidth <= 0 {
			errs = append(errs, errors.NewMissingField(name+".default_width"))
			continue
		}

		t := compress.Table{Default: fc.DefaultWidth.D()}
		for _, tc := range fc.Tiers {
			t.Tiers = append(t.Tiers, compress.Tier{MaxAge: tc.MaxAge.D(), Width: tc.Width.D()})
		}
		tables[f] = t
	}

	for f, t := range tables {
		if err := t.Validate(); err != nil {
			errs = append(errs, errors.NewValidation(f.String()+".tiers", err.Error()))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return tables, nil
}

// Catalogs returns the graph catalog of every family, built-in catalogs
// replaced by configured graphs.
func (c *Config) Catalogs() (map[history.Family][]graph.Spec, error) {
	catalogs := make(map[history.Family][]graph.Spec)
	for _, f := range history.AllFamilies() {
		catalogs[f] = graph.Catalog(f)
	}
	var errs []error

	for name, fc := range c.Families {
		f, err := history.ParseFamily(name)
		if err != nil || len(fc.Graphs) == 0 {
			continue
		}

		seen := make(map[string]bool)
		specs := make([]graph.Spec, 0, len(fc.Graphs))
		for _, gc := range fc.Graphs {
			s := graph.Spec{Name: gc.Name, Domain: gc.Domain.D(), Width: gc.Width.D()}
			if err := s.Validate(); err != nil {
				errs = append(errs, errors.NewValidation(name+".graphs", err.Error()))
				continue
			}
			if seen[s.Name] {
				errs = append(errs, errors.NewValidation(name+".graphs", fmt.Sprintf("duplicate graph %q", s.Name)))
				continue
			}
			seen[s.Name] = true
			specs = append(specs, s)
		}

		for i := 1; i < len(specs); i++ {
			if specs[i].Domain < specs[i-1].Domain {
				errs = append(errs, errors.NewValidation(name+".graphs",
					fmt.Sprintf("%s must not be shorter than %s", specs[i].Name, specs[i-1].Name)))
			}
		}
		catalogs[f] = specs
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return catalogs, nil
}

// CycleTimeout returns the updater cycle timeout.
func (c *Config) CycleTimeout() time.Duration {
	return c.Updater.CycleTimeout.D()
}
