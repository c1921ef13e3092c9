// Package config loads and validates the relayhist configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/relayhist/config"
)

// Config represents the complete relayhist configuration.
type Config struct {
	// DataDir is the root directory for all stored files.
	DataDir string `yaml:"data_dir"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Store selects and configures the record store.
	Store StoreConfig `yaml:"store"`

	// Journal configures the ingest write-ahead log.
	Journal JournalConfig `yaml:"journal"`

	// Updater configures ingest cycles.
	Updater UpdaterConfig `yaml:"updater"`

	// Render configures graph rendering.
	Render RenderConfig `yaml:"render"`

	// Families overrides tier tables and graph catalogs per family.
	// Keys are family names: uptime, read, write, weights, clients.
	Families map[string]FamilyConfig `yaml:"families"`

	// Scale describes the expected load for capacity planning.
	Scale ScaleConfig `yaml:"scale"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches from text to JSON output.
	JSON bool `yaml:"json"`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	// Backend is one of memory, file, badger, duckdb, parquet.
	Backend string `yaml:"backend"`

	// Path is the backend's directory, or the database file for duckdb.
	// Defaults to a backend-specific path under DataDir.
	Path string `yaml:"path"`

	Badger  BadgerConfig  `yaml:"badger"`
	DuckDB  DuckDBConfig  `yaml:"duckdb"`
	Parquet ParquetConfig `yaml:"parquet"`
}

// BadgerConfig configures the badger backend.
type BadgerConfig struct {
	// InMemory keeps the database in memory only.
	InMemory bool `yaml:"in_memory"`

	// MaxMemoryMB bounds memtables and caches.
	MaxMemoryMB int64 `yaml:"max_memory_mb"`
}

// DuckDBConfig configures the DuckDB backend.
type DuckDBConfig struct {
	// InMemory opens an in-memory database and ignores Path.
	InMemory bool `yaml:"in_memory"`

	// MaxOpenConns is the connection pool size.
	MaxOpenConns int `yaml:"max_open_conns"`

	// QueryTimeout bounds each Retrieve and Store.
	QueryTimeout Duration `yaml:"query_timeout"`
}

// ParquetConfig configures the parquet backend.
type ParquetConfig struct {
	// Compression is one of none, snappy, zstd, gzip.
	Compression string `yaml:"compression"`
}

// JournalConfig configures the ingest write-ahead log.
type JournalConfig struct {
	// Enabled turns journaling on.
	Enabled bool `yaml:"enabled"`

	// Dir is the journal directory. Defaults to {DataDir}/journal.
	Dir string `yaml:"dir"`

	// SyncMode is one of async, sync, fsync.
	SyncMode string `yaml:"sync_mode"`

	// MaxSegmentSize is the size at which a segment rotates.
	MaxSegmentSize int64 `yaml:"max_segment_size"`
}

// UpdaterConfig configures ingest cycles.
type UpdaterConfig struct {
	// Workers bounds the number of records updated concurrently.
	Workers int `yaml:"workers"`

	// LockStripes is the number of entity lock stripes.
	LockStripes int `yaml:"lock_stripes"`

	// CycleTimeout bounds one cycle run from the command line.
	CycleTimeout Duration `yaml:"cycle_timeout"`
}

// RenderConfig configures graph rendering.
type RenderConfig struct {
	// Ceiling is the largest encoded value.
	Ceiling int `yaml:"ceiling"`

	// MinCoveragePercent is the share of a bucket that must be covered
	// for the bucket to be plotted.
	MinCoveragePercent int64 `yaml:"min_coverage_percent"`

	// RequireAdjacent omits graphs without two adjacent plotted buckets.
	RequireAdjacent bool `yaml:"require_adjacent"`
}

// FamilyConfig overrides the tier table and graph catalog of a family.
// Empty fields keep the built-in defaults.
type FamilyConfig struct {
	// Tiers are compression tiers, youngest first.
	Tiers []TierConfig `yaml:"tiers"`

	// DefaultWidth applies beyond the oldest tier. Required with Tiers.
	DefaultWidth Duration `yaml:"default_width"`

	// Graphs replaces the graph catalog, shortest window first.
	Graphs []GraphConfig `yaml:"graphs"`
}

// TierConfig is one compression tier.
type TierConfig struct {
	MaxAge Duration `yaml:"max_age"`
	Width  Duration `yaml:"width"`
}

// GraphConfig is one graph of a catalog.
type GraphConfig struct {
	Name   string   `yaml:"name"`
	Domain Duration `yaml:"domain"`
	Width  Duration `yaml:"width"`
}

// ScaleConfig describes the expected load.
type ScaleConfig struct {
	// Relays is the expected number of records per family.
	Relays int `yaml:"relays"`

	// HistoryAge is how much time a record is expected to span.
	HistoryAge Duration `yaml:"history_age"`
}

// Load loads configuration from a YAML file. Fields missing from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaults.DefaultDataDir,
		Log: LogConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Backend: defaults.DefaultStoreBackend,
			Badger: BadgerConfig{
				MaxMemoryMB: defaults.DefaultBadgerMemoryMB,
			},
			DuckDB: DuckDBConfig{
				MaxOpenConns: defaults.DefaultDuckDBMaxOpenConns,
				QueryTimeout: Duration(defaults.DefaultStoreQueryTimeout),
			},
			Parquet: ParquetConfig{
				Compression: defaults.DefaultParquetCompression,
			},
		},
		Journal: JournalConfig{
			Enabled:        true,
			SyncMode:       defaults.DefaultJournalSyncMode,
			MaxSegmentSize: defaults.DefaultJournalMaxSegmentSize,
		},
		Updater: UpdaterConfig{
			Workers:      defaults.DefaultUpdaterWorkers,
			LockStripes:  defaults.DefaultLockStripes,
			CycleTimeout: Duration(defaults.DefaultCycleTimeout),
		},
		Render: RenderConfig{
			Ceiling:            defaults.DefaultGraphCeiling,
			MinCoveragePercent: defaults.DefaultMinCoveragePercent,
			RequireAdjacent:    true,
		},
		Scale: ScaleConfig{
			Relays:     defaults.DefaultRelayCount,
			HistoryAge: Duration(defaults.DefaultHistoryAge),
		},
	}
}

// StorePath returns the store location, defaulting per backend.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	switch c.Store.Backend {
	case "file":
		return filepath.Join(c.DataDir, "status")
	case "badger":
		return filepath.Join(c.DataDir, "badger")
	case "duckdb":
		return filepath.Join(c.DataDir, "relayhist.duckdb")
	case "parquet":
		return filepath.Join(c.DataDir, "parquet")
	default:
		return ""
	}
}

// JournalDir returns the journal directory path.
func (c *Config) JournalDir() string {
	if c.Journal.Dir != "" {
		return c.Journal.Dir
	}
	return filepath.Join(c.DataDir, "journal")
}

// EnsureDirectories creates the data and journal directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Journal.Enabled {
		dirs = append(dirs, c.JournalDir())
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// Durations
// =============================================================================

const day = 24 * time.Hour

// Duration is a time.Duration that reads and writes day counts, as in
// "31d" or "2d12h", in addition to the units time.ParseDuration knows.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return FormatDuration(time.Duration(d)), nil
}

// ParseDuration parses a duration with an optional leading day count.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	days, rest, ok := strings.Cut(s, "d")
	if !ok {
		return time.ParseDuration(s)
	}

	n, err := strconv.ParseInt(days, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid day count in duration %q", s)
	}
	total := time.Duration(n) * day
	if rest == "" {
		return total, nil
	}

	extra, err := time.ParseDuration(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return total + extra, nil
}

// FormatDuration formats d, using a day count when d has whole days.
func FormatDuration(d time.Duration) string {
	if d <= 0 || d < day {
		return d.String()
	}
	days := d / day
	rest := d % day
	if rest == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%s", days, rest)
}
