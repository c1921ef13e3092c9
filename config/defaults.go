// Package config provides configuration defaults for relayhist.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml.
package config

import "time"

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultDataDir is the root for status documents and the journal.
	// Override via config: data_dir
	DefaultDataDir = "/var/lib/relayhist"

	// DefaultStoreBackend is the record store used when none is configured.
	// One of: memory, file, badger, duckdb, parquet.
	// Override via config: store.backend
	DefaultStoreBackend = "file"

	// DefaultBadgerMemoryMB bounds badger's memtables and caches.
	// Override via config: store.badger.max_memory_mb
	DefaultBadgerMemoryMB = 256

	// DefaultDuckDBMaxOpenConns is the DuckDB connection pool size.
	// Override via config: store.duckdb.max_open_conns
	DefaultDuckDBMaxOpenConns = 4

	// DefaultStoreQueryTimeout bounds one Retrieve or Store against DuckDB.
	// Override via config: store.duckdb.query_timeout
	DefaultStoreQueryTimeout = 30 * time.Second

	// DefaultParquetCompression is the codec for parquet records.
	// Override via config: store.parquet.compression
	DefaultParquetCompression = "zstd"
)

// =============================================================================
// Journal Defaults
// =============================================================================

const (
	// DefaultJournalSyncMode fsyncs every ingest batch before it is applied.
	// One of: async, sync, fsync.
	// Override via config: journal.sync_mode
	DefaultJournalSyncMode = "fsync"

	// DefaultJournalMaxSegmentSize is the size at which a segment rotates.
	// Override via config: journal.max_segment_size
	DefaultJournalMaxSegmentSize = 64 * 1024 * 1024
)

// =============================================================================
// Updater Defaults
// =============================================================================

const (
	// DefaultUpdaterWorkers is the number of records updated concurrently.
	// Override via config: updater.workers
	DefaultUpdaterWorkers = 8

	// DefaultLockStripes is the number of entity lock stripes.
	// More stripes mean fewer unrelated records sharing a lock.
	// Override via config: updater.lock_stripes
	DefaultLockStripes = 256

	// DefaultCycleTimeout bounds one ingest cycle started from the CLI.
	// Override via config: updater.cycle_timeout
	DefaultCycleTimeout = 10 * time.Minute
)

// =============================================================================
// Render Defaults
// =============================================================================

const (
	// DefaultGraphCeiling is the largest encoded graph value.
	// Override via config: render.ceiling
	DefaultGraphCeiling = 999

	// DefaultMinCoveragePercent is the share of a bucket that must be
	// covered for the bucket to be plotted.
	// Override via config: render.min_coverage_percent
	DefaultMinCoveragePercent = 20
)

// =============================================================================
// Capacity Planning Defaults
// =============================================================================

const (
	// DefaultRelayCount is the expected number of entities per family.
	// Override via config: scale.relays
	DefaultRelayCount = 10000

	// DefaultHistoryAge is how much history records are expected to span.
	// Override via config: scale.history_age
	DefaultHistoryAge = 5 * 366 * 24 * time.Hour
)
