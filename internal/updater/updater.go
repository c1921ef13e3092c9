// Package updater runs ingest cycles: it merges observations into status
// records, compresses them, writes back what changed and renders graphs
// from the stored histories.
//
// Each record is guarded by a striped read/write lock keyed by its
// family and entity. A cycle holds the write lock of one record at a
// time per worker; rendering holds read locks, so a reader sees a record
// either before or after a cycle touched it.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/relayhist/internal/compress"
	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/graph"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/journal"
	"github.com/xtxerr/relayhist/internal/logging"
	"github.com/xtxerr/relayhist/internal/status"
	"github.com/xtxerr/relayhist/internal/store"
)

// Config holds updater settings.
type Config struct {
	// Workers bounds the number of records updated concurrently.
	Workers int

	// LockStripes is the number of entity lock stripes. Rounded up to
	// a power of two.
	LockStripes int
}

// DefaultConfig returns the default updater settings.
func DefaultConfig() Config {
	return Config{
		Workers:     8,
		LockStripes: 256,
	}
}

// Journal is the write-ahead log the updater appends to before a cycle.
type Journal interface {
	Append(journal.Batch) error
	Segments() ([]string, error)
	Truncate() (int, error)
}

// Option configures an Updater.
type Option func(*Updater)

// WithJournal journals every Ingest batch before it is applied.
func WithJournal(j Journal) Option {
	return func(u *Updater) { u.journal = j }
}

// WithCatalog replaces the graph catalog of a family.
func WithCatalog(f history.Family, catalog []graph.Spec) Option {
	return func(u *Updater) { u.catalogs[f] = catalog }
}

// WithRenderOptions sets the base render options shared by all series.
func WithRenderOptions(opts graph.Options) Option {
	return func(u *Updater) { u.render = opts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Updater) { u.log = l }
}

// Updater applies observations to stored records.
//
// Updater is safe for concurrent use.
type Updater struct {
	store      store.Store
	compressor *compress.Compressor
	journal    Journal
	catalogs   map[history.Family][]graph.Spec
	render     graph.Options
	locks      *lockTable
	cfg        Config
	log        *slog.Logger

	// journalMu orders replay against in-flight ingests: ingests share
	// it, replay holds it exclusively until the journal is truncated.
	journalMu sync.RWMutex
}

// New creates an updater over st.
func New(st store.Store, c *compress.Compressor, cfg Config, opts ...Option) (*Updater, error) {
	if st == nil {
		return nil, errors.NewMissingField("store")
	}
	if c == nil {
		return nil, errors.NewMissingField("compressor")
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.LockStripes <= 0 {
		cfg.LockStripes = def.LockStripes
	}

	u := &Updater{
		store:      st,
		compressor: c,
		catalogs:   make(map[history.Family][]graph.Spec),
		render:     graph.DefaultOptions(),
		locks:      newLockTable(cfg.LockStripes),
		cfg:        cfg,
		log:        logging.Component("updater"),
	}
	for _, f := range history.AllFamilies() {
		u.catalogs[f] = graph.Catalog(f)
	}
	for _, opt := range opts {
		opt(u)
	}

	for f, catalog := range u.catalogs {
		for _, spec := range catalog {
			if err := spec.Validate(); err != nil {
				return nil, errors.Wrapf(err, "%s catalog", f)
			}
		}
	}
	return u, nil
}

// Cycle applies observations as of now. Observations are grouped by
// record; groups run concurrently, each under its record's write lock.
//
// The context is checked before each record starts. Once started a
// record is finished even if ctx ends meanwhile. Records never started
// are counted as skipped and Cycle returns ctx.Err(). Store failures are
// counted and logged, never returned. Observations that fail Validate
// are logged and counted as malformed.
func (u *Updater) Cycle(ctx context.Context, now int64, obs []status.Observation) (Report, error) {
	started := time.Now()
	t := newTally()

	valid := make([]status.Observation, 0, len(obs))
	for _, o := range obs {
		if err := o.Validate(); err != nil {
			t.malformed()
			u.log.Warn("dropping malformed observation",
				"family", o.Family.String(), "entity", o.Entity, "error", err)
			continue
		}
		valid = append(valid, o)
	}
	order, groups := status.Group(valid)

	g := new(errgroup.Group)
	g.SetLimit(u.cfg.Workers)

	for _, key := range order {
		group := groups[key]
		if ctx.Err() != nil {
			t.skip()
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				t.skip()
				return nil
			}
			u.update(context.WithoutCancel(ctx), now, group, t)
			return nil
		})
	}
	g.Wait()

	r := t.finish(started)
	u.log.Debug("cycle finished", "report", r.String())
	if r.Skipped > 0 {
		return r, ctx.Err()
	}
	return r, nil
}

// update runs one record through retrieve, merge, compress and store.
func (u *Updater) update(ctx context.Context, now int64, group []status.Observation, t *tally) {
	began := time.Now()
	f, entity := group[0].Family, group[0].Entity
	log := logging.ForRecord(u.log, f.String(), entity)

	mu := u.locks.get(status.Key(f, entity))
	mu.Lock()
	defer mu.Unlock()

	rec, err := u.store.Retrieve(ctx, f, entity)
	switch {
	case err == nil:
	case errors.IsNotFound(err):
		rec = status.New(f, entity)
	default:
		log.Warn("retrieve failed", "error", err)
		t.entity(0, 0, false, true, time.Since(began))
		return
	}

	intervals := make([]history.Interval, len(group))
	for i, o := range group {
		intervals[i] = o.Interval
	}
	accepted := rec.Merge(intervals)
	merged := rec.Compress(u.compressor, now)

	var stored, failed bool
	if rec.Dirty() {
		if err := u.store.Store(ctx, rec); err != nil {
			log.Warn("store failed", "error", err)
			failed = true
		} else {
			rec.ClearDirty()
			stored = true
		}
	}

	log.Debug("record updated",
		"accepted", accepted,
		"rejected", len(group)-accepted,
		"compressed", merged,
		"intervals", rec.History().Len(),
		"stored", stored)
	t.entity(accepted, len(group)-accepted, stored, failed, time.Since(began))
}

// Ingest parses raw observations, journals the parsed batch and runs a
// cycle over it. Malformed observations are logged and dropped.
func (u *Updater) Ingest(ctx context.Context, now int64, raw []status.RawObservation) (Report, error) {
	obs := make([]status.Observation, 0, len(raw))
	malformed := 0
	for _, r := range raw {
		o, err := status.ParseObservation(r)
		if err != nil {
			malformed++
			u.log.Warn("dropping malformed observation",
				"family", r.Family, "entity", r.Entity, "error", err)
			continue
		}
		obs = append(obs, o)
	}

	u.journalMu.RLock()
	defer u.journalMu.RUnlock()

	if u.journal != nil && len(obs) > 0 {
		if err := u.journal.Append(journal.Batch{IngestedAt: now, Observations: obs}); err != nil {
			return Report{Malformed: malformed}, fmt.Errorf("journal append: %w", err)
		}
	}

	r, err := u.Cycle(ctx, now, obs)
	r.Malformed += malformed
	return r, err
}

// Replay applies every journaled batch in one cycle and truncates the
// journal once the cycle completed. Without a journal it does nothing.
func (u *Updater) Replay(ctx context.Context, now int64) (Report, error) {
	if u.journal == nil {
		return Report{}, nil
	}

	u.journalMu.Lock()
	defer u.journalMu.Unlock()

	paths, err := u.journal.Segments()
	if err != nil {
		return Report{}, fmt.Errorf("list journal: %w", err)
	}
	batches, stats, err := journal.ReadSegments(paths)
	if err != nil {
		return Report{}, fmt.Errorf("read journal: %w", err)
	}
	if stats.CorruptRecords > 0 || stats.TornTail {
		u.log.Warn("journal damaged",
			"corrupt_records", stats.CorruptRecords,
			"torn_tail", stats.TornTail)
	}

	var obs []status.Observation
	for _, b := range batches {
		obs = append(obs, b.Observations...)
	}

	r, err := u.Cycle(ctx, now, obs)
	if err != nil {
		return r, err
	}

	removed, err := u.journal.Truncate()
	if err != nil {
		return r, fmt.Errorf("truncate journal: %w", err)
	}
	u.log.Info("journal replayed",
		"batches", len(batches),
		"observations", len(obs),
		"segments_removed", removed,
		"report", r.String())
	return r, nil
}

// Record returns a copy of a stored record, read under its lock.
func (u *Updater) Record(ctx context.Context, f history.Family, entity string) (*status.Record, error) {
	mu := u.locks.get(status.Key(f, entity))
	mu.RLock()
	defer mu.RUnlock()

	return u.store.Retrieve(ctx, f, entity)
}

// Render renders the graph catalog of one record as of now. Uptime of a
// relay is normalized against the network uptime record when one exists.
func (u *Updater) Render(ctx context.Context, f history.Family, entity string, now int64) ([]graph.Graph, error) {
	rec, err := u.Record(ctx, f, entity)
	if err != nil {
		return nil, err
	}

	opts := u.render
	if f == history.FamilyUptime && entity != history.NetworkEntity {
		base, err := u.Record(ctx, f, history.NetworkEntity)
		switch {
		case err == nil:
			opts.Baseline = base.History()
		case errors.IsNotFound(err):
		default:
			return nil, errors.Wrap(err, "retrieve baseline")
		}
	}

	return graph.RenderFamily(f, rec.History(), now, u.catalogs[f], opts), nil
}

// Entities lists the entities stored for a family, when the store can
// enumerate its records.
func (u *Updater) Entities(ctx context.Context, f history.Family) ([]string, error) {
	l, ok := u.store.(store.Lister)
	if !ok {
		return nil, fmt.Errorf("store %T cannot list records", u.store)
	}
	return l.List(ctx, f)
}

// Compressor returns the updater's compressor.
func (u *Updater) Compressor() *compress.Compressor {
	return u.compressor
}
