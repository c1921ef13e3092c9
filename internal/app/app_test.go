package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/xtxerr/relayhist/internal/config"
	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/logging"
	"github.com/xtxerr/relayhist/internal/store"
	"github.com/xtxerr/relayhist/internal/store/parquet"
	testutil "github.com/xtxerr/relayhist/internal/testing"
)

var now = testutil.Time("2014-03-23 12:00:00")

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Store.Backend = backend
	cfg.Journal.SyncMode = "sync"
	return cfg
}

// uptimeLines returns hourly uptime lines for the relay.
func uptimeLines(start string, n int) string {
	var b strings.Builder
	s := testutil.Time(start)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "uptime %s %d %d 1\n", testutil.Fingerprint, s, s+3600000)
		s += 3600000
	}
	return b.String()
}

func TestApp_IngestRender(t *testing.T) {
	ctx := context.Background()

	a, err := New(testConfig(t, "memory"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	input := "# relay uptime\n" + uptimeLines("2014-03-23 04:00:00", 4) + "\n" + uptimeLines("2014-03-23 10:00:00", 2)
	raw, skipped, err := ReadObservations(strings.NewReader(input), logging.Discard())
	if err != nil {
		t.Fatalf("ReadObservations: %v", err)
	}
	if skipped != 0 || len(raw) != 6 {
		t.Fatalf("read %d observations, skipped %d", len(raw), skipped)
	}

	r, err := a.Ingest(ctx, now, raw)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if r.Accepted != 6 || r.Stored != 1 {
		t.Errorf("report = %s", r)
	}

	graphs, err := a.Render(ctx, "uptime", testutil.Fingerprint, now)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(graphs) != 1 || !slices.Equal(graphs[0].Values, []int{999, 500}) {
		t.Errorf("graphs = %+v", graphs)
	}

	entities, err := a.Entities(ctx, "uptime")
	if err != nil {
		t.Fatalf("Entities: %v", err)
	}
	if !slices.Equal(entities, []string{testutil.Fingerprint}) {
		t.Errorf("entities = %v", entities)
	}
}

func TestApp_UnknownFamily(t *testing.T) {
	a, err := New(testConfig(t, "memory"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, err := a.Render(context.Background(), "bandwidth", testutil.Fingerprint, now); !errors.Is(err, errors.ErrUnknownFamily) {
		t.Errorf("Render: expected unknown family, got %v", err)
	}
	if _, err := a.Entities(context.Background(), "bandwidth"); !errors.Is(err, errors.ErrUnknownFamily) {
		t.Errorf("Entities: expected unknown family, got %v", err)
	}
	if _, err := a.Render(context.Background(), "uptime", "../uptime", now); !errors.IsMalformed(err) {
		t.Errorf("Render: expected malformed entity, got %v", err)
	}
}

func TestApp_ReopenFileStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "file")

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, _, err := ReadObservations(strings.NewReader(uptimeLines("2014-03-23 04:00:00", 4)), logging.Discard())
	if err != nil {
		t.Fatalf("ReadObservations: %v", err)
	}
	if _, err := a.Ingest(ctx, now, raw); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.StorePath(), "uptime", testutil.Fingerprint)); err != nil {
		t.Errorf("status document not written: %v", err)
	}

	a, err = New(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer a.Close()

	// The journaled batch is already merged; replaying it changes nothing.
	r, err := a.Replay(ctx, now)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if r.Accepted != 0 || r.Rejected != 4 || r.Stored != 0 {
		t.Errorf("replay report = %s", r)
	}

	rec, err := a.Updater().Record(ctx, history.FamilyUptime, testutil.Fingerprint)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.History().Len() != 4 {
		t.Errorf("expected 4 intervals, got %d", rec.History().Len())
	}
}

func TestApp_JournalDisabled(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Journal.Enabled = false

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, err := os.Stat(cfg.JournalDir()); !os.IsNotExist(err) {
		t.Errorf("journal dir should not exist, stat error %v", err)
	}

	r, err := a.Replay(context.Background(), now)
	if err != nil || r.Entities != 0 {
		t.Errorf("Replay = %s, %v", r, err)
	}
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		backend string
		setup   func(*config.Config)
		wantErr bool
	}{
		{backend: "memory"},
		{backend: "file"},
		{backend: "parquet"},
		{backend: "badger", setup: func(c *config.Config) { c.Store.Badger.InMemory = true }},
		{backend: "duckdb", setup: func(c *config.Config) { c.Store.DuckDB.InMemory = true }},
		{backend: "cassandra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := testConfig(t, tt.backend)
			if tt.setup != nil {
				tt.setup(cfg)
			}

			st, err := OpenStore(cfg)
			if tt.wantErr {
				if !errors.IsValidation(err) {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenStore: %v", err)
			}
			defer st.Close()

			if _, ok := st.(store.Lister); !ok {
				t.Errorf("%T does not list records", st)
			}
		})
	}
}

func TestOpenStore_ParquetCompression(t *testing.T) {
	cfg := testConfig(t, "parquet")
	cfg.Store.Parquet.Compression = "snappy"

	st, err := OpenStore(cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Close()

	if _, ok := st.(*parquet.Store); !ok {
		t.Errorf("expected parquet store, got %T", st)
	}
}

func TestRenderOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Render.Ceiling = 100
	cfg.Render.MinCoveragePercent = 50
	cfg.Render.RequireAdjacent = false

	opts := RenderOptions(cfg)
	if opts.Ceiling != 100 || opts.MinCoveragePercent != 50 || opts.RequireAdjacent {
		t.Errorf("opts = %+v", opts)
	}
}

func TestReadObservations(t *testing.T) {
	input := strings.Join([]string{
		"# comment",
		"",
		"read ABCD 1000 2000 512",
		"weights ABCD 2014-03-23T04:00:00Z 2014-03-23T05:00:00Z 0.1 0.2 0.3 0.4 0.5",
		"clients ABCD 0 86400000 12 de=4 us=8",
		"uptime ABCD 1000",
		"uptime ABCD yesterday 2000 1",
	}, "\n")

	raw, skipped, err := ReadObservations(strings.NewReader(input), logging.Discard())
	if err != nil {
		t.Fatalf("ReadObservations: %v", err)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(raw) != 3 {
		t.Fatalf("read %d observations, want 3", len(raw))
	}

	if raw[0].Family != "read" || raw[0].Start != 1000 || raw[0].End != 2000 || !slices.Equal(raw[0].Fields, []string{"512"}) {
		t.Errorf("raw[0] = %+v", raw[0])
	}
	if raw[1].Start != testutil.Time("2014-03-23 04:00:00") || len(raw[1].Fields) != 5 {
		t.Errorf("raw[1] = %+v", raw[1])
	}
	if !slices.Equal(raw[2].Fields, []string{"12", "de=4", "us=8"}) {
		t.Errorf("raw[2] = %+v", raw[2])
	}
}
