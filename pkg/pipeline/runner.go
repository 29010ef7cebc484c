package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/bundlewire/pkg/cache"
	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/io"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/state"
	"github.com/matzehuels/bundlewire/pkg/store"
)

// Runner executes pipeline runs against a cache.
//
// The Runner holds no pipeline results, only the cache and the logger, so
// several goroutines may share one as long as they work on different
// states.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (persistence disabled unless a
// state directory is given).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete load → reconcile → resolve → persist pipeline
// on the persisted state.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	opts = r.prepare(opts)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	st, restored, err := r.Restore(ctx, opts)
	if err != nil {
		return nil, err
	}
	res, err := r.Refresh(ctx, st, opts)
	if err != nil {
		return nil, err
	}
	res.CacheInfo.Restored = restored
	return res, nil
}

// Refresh runs the pipeline on st, which the caller keeps between runs.
// This is how long-running callers such as the watcher and the server
// avoid restoring the state for every change.
func (r *Runner) Refresh(ctx context.Context, st *state.State, opts Options) (*Result, error) {
	opts = r.prepare(opts)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	result := &Result{State: st}

	// Stage 1: Load
	opts.enter(StageLoad)
	loadStart := time.Now()
	set, err := io.LoadPath(ctx, opts.Declarations)
	if err != nil {
		return nil, err
	}
	result.Set = set
	result.Stats.LoadTime = time.Since(loadStart)
	opts.Logger.Debug("loaded declarations",
		"path", opts.Declarations,
		"revisions", len(set.Revisions),
		"disabled", len(set.Disabled),
		"duration", result.Stats.LoadTime)

	// Stage 2: Reconcile
	opts.enter(StageReconcile)
	report, err := Apply(st, set, opts.State)
	if err != nil {
		return nil, err
	}
	result.Report = report
	opts.Logger.Info("reconciled state",
		"added", report.Added,
		"updated", report.Updated,
		"removed", report.Removed,
		"unchanged", report.Unchanged)

	// Stage 3: Resolve
	opts.enter(StageResolve)
	subset, err := Subset(st, opts.Subset)
	if err != nil {
		return nil, err
	}
	resolveStart := time.Now()
	d, err := st.Resolve(ctx, subset, opts.Force)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	result.Delta = d
	result.Stats.ResolveTime = time.Since(resolveStart)
	result.Stats.Revisions = len(st.Revisions())
	result.Stats.Resolved = len(st.ResolvedRevisions())
	opts.Logger.Info("resolved state",
		"resolved", result.Stats.Resolved,
		"revisions", result.Stats.Revisions,
		"changes", d.Len(),
		"duration", result.Stats.ResolveTime)

	// Stage 4: Persist
	if opts.DryRun {
		return result, nil
	}
	opts.enter(StagePersist)
	persistStart := time.Now()
	saved, err := r.Persist(ctx, st, opts)
	if err != nil {
		return nil, err
	}
	result.CacheInfo.Saved = saved
	result.Stats.PersistTime = time.Since(persistStart)
	return result, nil
}

// prepare applies the runner's logger and the option defaults.
func (r *Runner) prepare(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	return opts.WithDefaults()
}

// Restore reads the persisted state named by opts. It returns a new empty
// state, and false, when nothing usable is stored or opts.Fresh is set.
func (r *Runner) Restore(ctx context.Context, opts Options) (*state.State, bool, error) {
	opts = r.prepare(opts)
	opts.enter(StageRestore)
	if !opts.Fresh {
		var (
			st  *state.State
			err error
		)
		if opts.StateDir != "" {
			st, err = store.ReadDir(ctx, opts.StateDir, opts.State)
		} else {
			st, err = store.Load(ctx, r.Cache, r.Keyer.StateKey(opts.StateName), opts.State)
		}
		if err != nil {
			return nil, false, err
		}
		if st != nil {
			opts.Logger.Debug("restored state", "id", st.ID(), "timestamp", st.Timestamp(), "revisions", len(st.All()))
			return st, true, nil
		}
	}
	return state.New(opts.State), false, nil
}

// Persist writes st to the location named by opts. It reports false when
// the runner has no cache that keeps data.
func (r *Runner) Persist(ctx context.Context, st *state.State, opts Options) (bool, error) {
	opts = r.prepare(opts)
	if opts.StateDir != "" {
		if err := store.WriteDir(ctx, st, opts.StateDir); err != nil {
			return false, err
		}
		return true, nil
	}
	if _, ok := r.Cache.(cache.NullCache); ok {
		return false, nil
	}
	if err := store.Save(ctx, r.Cache, r.Keyer.StateKey(opts.StateName), st, opts.TTL); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the runner's cache.
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// =============================================================================
// Reconcile
// =============================================================================

// Apply makes st match set: revisions are reconciled by id, disabled infos
// are synchronized per policy and, when set carries a platform, it replaces
// the state's. Otherwise the platform in defaults applies, if any.
func Apply(st *state.State, set *io.Set, defaults state.Options) (state.ReconcileReport, error) {
	report, err := st.Reconcile(set.Revisions)
	if err != nil {
		return report, err
	}
	if err := syncDisabled(st, set); err != nil {
		return report, err
	}
	switch {
	case len(set.Platform) > 0:
		st.SetPlatformProperties(set.Platform)
	case len(defaults.Platform) > 0:
		st.SetPlatformProperties(defaults.Platform)
	}
	return report, nil
}

// syncDisabled maps the set's disabled infos onto the state's live
// instances, which may differ from the set's when a declaration was left
// unchanged, and drops infos the set no longer names.
func syncDisabled(st *state.State, set *io.Set) error {
	wanted := map[int64][]model.DisabledInfo{}
	for _, info := range set.Disabled {
		id := info.Revision.ID()
		wanted[id] = append(wanted[id], info)
	}

	for _, live := range st.Revisions() {
		infos := wanted[live.ID()]
		for _, info := range st.DisabledInfos(live) {
			if !slices.ContainsFunc(infos, func(w model.DisabledInfo) bool { return w.Policy == info.Policy }) {
				st.RemoveDisabledInfo(info)
			}
		}
		for _, info := range infos {
			if cur, ok := st.DisabledInfo(live, info.Policy); ok && cur.Message == info.Message {
				continue
			}
			info.Revision = live
			if err := st.AddDisabledInfo(info); err != nil {
				return err
			}
		}
	}
	return nil
}

// Subset looks up the live revisions with the given ids.
func Subset(st *state.State, ids []int64) ([]*model.Revision, error) {
	var out []*model.Revision
	for _, id := range ids {
		r, ok := st.Revision(id)
		if !ok {
			return nil, errors.New(errors.ErrCodeNotFound, "no revision with id %d", id)
		}
		out = append(out, r)
	}
	return out, nil
}
