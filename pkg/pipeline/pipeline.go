// Package pipeline runs the restore → reconcile → resolve → persist cycle that
// the CLI, the watcher and the HTTP server share.
//
// # Stages
//
//  1. Restore: read the previously persisted state, from a state directory
//     or from the cache, or start an empty one
//  2. Load: decode the declaration files under a path (see package io)
//  3. Reconcile: bring the state's revisions, disabled infos and platform in
//     line with the declarations
//  4. Resolve: run one resolve pass and collect the delta
//  5. Persist: write the state back unless the run is a dry run
//
// Execute runs all five stages. Refresh skips the first one for callers
// that keep the state in memory.
//
// # Usage
//
//	runner := pipeline.NewRunner(c, nil, logger)
//	res, err := runner.Execute(ctx, pipeline.Options{
//	    Declarations: "bundles/",
//	    StateName:    "default",
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Delta)
//
// Rendering reuses the same cache:
//
//	svg, err := runner.Render(ctx, res.State, pipeline.RenderOptions{Format: "svg"})
package pipeline

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/bundlewire/pkg/delta"
	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/io"
	"github.com/matzehuels/bundlewire/pkg/render"
	"github.com/matzehuels/bundlewire/pkg/state"
)

// DefaultStateName names the persisted state when Options.StateName is empty.
const DefaultStateName = "default"

// =============================================================================
// Options
// =============================================================================

// Options configures one pipeline run.
type Options struct {
	// Declarations is a declaration file or a directory of them.
	Declarations string

	// StateName keys the persisted state in the cache (default: "default").
	StateName string

	// StateDir, when set, persists the state as a file in this directory
	// instead of in the cache.
	StateDir string

	// State configures a freshly created state and the logger and resolver
	// settings of a restored one.
	State state.Options

	// Subset lists revision ids to refresh. Empty resolves everything that
	// is unresolved.
	Subset []int64

	// Force lets the pass unresolve dependents of removal-pending revisions
	// and displace resolved singletons.
	Force bool

	// Fresh ignores any persisted state.
	Fresh bool

	// DryRun skips the persist stage.
	DryRun bool

	// TTL bounds how long the cache keeps the state (0: no expiry).
	TTL time.Duration

	// OnStage, when set, is called as each stage begins.
	OnStage func(Stage)

	Logger *log.Logger
}

// Stage names a pipeline stage.
type Stage string

const (
	StageRestore   Stage = "restore"
	StageLoad      Stage = "load"
	StageReconcile Stage = "reconcile"
	StageResolve   Stage = "resolve"
	StagePersist   Stage = "persist"
)

func (o Options) enter(s Stage) {
	if o.OnStage != nil {
		o.OnStage(s)
	}
}

// WithDefaults returns a copy with zero-value fields set to defaults.
func (o Options) WithDefaults() Options {
	if o.StateName == "" {
		o.StateName = DefaultStateName
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.State.Logger == nil {
		o.State.Logger = o.Logger
	}
	return o
}

// Validate checks the options that have no sensible default.
func (o Options) Validate() error {
	if o.Declarations == "" {
		return errors.New(errors.ErrCodeInvalidInput, "no declarations given")
	}
	if o.StateName != "" {
		return errors.ValidatePath(o.StateName)
	}
	return nil
}

// RenderOptions configures [Runner.Render].
type RenderOptions struct {
	Format         string // default: svg
	Namespace      string // only draw wires of this namespace
	Detailed       bool
	HideUnresolved bool
}

// Stage names a pipeline stage.
type Stage string

const (
	StageRestore   Stage = "restore"
	StageLoad      Stage = "load"
	StageReconcile Stage = "reconcile"
	StageResolve   Stage = "resolve"
	StagePersist   Stage = "persist"
)

func (o Options) enter(s Stage) {
	if o.OnStage != nil {
		o.OnStage(s)
	}
}

// WithDefaults returns a copy with zero-value fields set to defaults.
func (o RenderOptions) WithDefaults() RenderOptions {
	if o.Format == "" {
		o.Format = render.FormatSVG
	}
	return o
}

// =============================================================================
// Results
// =============================================================================

// Result holds the outcome of a pipeline run.
type Result struct {
	// Set is the decoded declarations.
	Set *io.Set

	// State is the resolved state, owning the live revisions.
	State *state.State

	// Delta lists what the resolve pass changed.
	Delta delta.StateDelta

	// Report counts the reconcile operations.
	Report state.ReconcileReport

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline timings and sizes.
type Stats struct {
	Revisions   int
	Resolved    int
	LoadTime    time.Duration
	ResolveTime time.Duration
	PersistTime time.Duration
}

// CacheInfo tracks where the state came from.
type CacheInfo struct {
	Restored bool // a persisted state was found and used
	Saved    bool // the state was persisted
}
