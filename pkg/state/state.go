// Package state holds the graph of installed revisions and drives resolution.
//
// A State owns its revisions: AddRevision claims a released revision, and a
// revision can only join another State once it has been fully released.
// Removing or updating a resolved revision leaves the old instance "removal
// pending" so that revisions wired to it keep working until they are
// refreshed; the first resolve after which nothing live is wired to it
// releases it.
//
// Resolve runs one pass of the resolver over the graph, applies the result
// and reports what changed since the previous pass as a delta.StateDelta.
// Unsatisfiable revisions simply stay unresolved; the only errors are
// ownership violations and the resolver's iteration limit.
//
// A State is not safe for concurrent use. Independent States are.
package state

import (
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/bundlewire/pkg/delta"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/platform"
	"github.com/matzehuels/bundlewire/pkg/resolver"
	"github.com/matzehuels/bundlewire/pkg/version"
)

// Options configures a State.
type Options struct {
	// Platform is the initial platform context (default: none).
	Platform platform.Properties

	// DevMode resolves in development mode regardless of the platform.
	DevMode bool

	// MaxIterations bounds each resolve pass (default: 10000).
	MaxIterations int

	// Logger receives resolve diagnostics (default: log.Default()).
	Logger *log.Logger
}

// WithDefaults returns a copy with zero-value fields set to defaults.
func (o Options) WithDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = resolver.DefaultMaxIterations
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// State is a graph store of revisions and their wirings.
type State struct {
	id         uuid.UUID
	timestamp  int64
	revs       []*model.Revision // live and removal-pending, insertion order
	platform   platform.Properties
	comparator resolver.Comparator
	disabled   map[*model.Revision][]model.DisabledInfo
	system     map[*model.Revision][]*model.Capability
	last       delta.Snapshot
	opts       Options
}

// New returns an empty State.
func New(opts Options) *State {
	opts = opts.WithDefaults()
	return &State{
		id:       uuid.New(),
		platform: opts.Platform.Clone(),
		disabled: map[*model.Revision][]model.DisabledInfo{},
		system:   map[*model.Revision][]*model.Capability{},
		opts:     opts,
	}
}

// ID identifies the State across persistence round trips.
func (s *State) ID() uuid.UUID { return s.id }

// Timestamp increases with every change to the graph.
func (s *State) Timestamp() int64 { return s.timestamp }

func (s *State) touch() { s.timestamp++ }

// Logger returns the logger the State reports to.
func (s *State) Logger() *log.Logger { return s.opts.Logger }

// =============================================================================
// Queries
// =============================================================================

// Revision returns the live revision with the given id.
func (s *State) Revision(id int64) (*model.Revision, bool) {
	for _, r := range s.revs {
		if r.ID() == id && r.Lifecycle() == model.Owned {
			return r, true
		}
	}
	return nil, false
}

// RevisionByName returns the live revision with the given symbolic name and
// version.
func (s *State) RevisionByName(name string, v version.Version) (*model.Revision, bool) {
	for _, r := range s.revs {
		if r.SymbolicName() == name && r.Version().Equal(v) && r.Lifecycle() == model.Owned {
			return r, true
		}
	}
	return nil, false
}

// Revisions returns the live revisions in insertion order.
func (s *State) Revisions() []*model.Revision {
	return s.filter(func(r *model.Revision) bool { return r.Lifecycle() == model.Owned })
}

// ResolvedRevisions returns the live resolved revisions in insertion order.
func (s *State) ResolvedRevisions() []*model.Revision {
	return s.filter(func(r *model.Revision) bool { return r.Lifecycle() == model.Owned && r.IsResolved() })
}

// RemovalPending returns removed or replaced revisions that are still wired.
func (s *State) RemovalPending() []*model.Revision {
	return s.filter(func(r *model.Revision) bool { return r.Lifecycle() == model.RemovalPending })
}

// All returns live and removal-pending revisions in insertion order.
func (s *State) All() []*model.Revision {
	return append([]*model.Revision(nil), s.revs...)
}

func (s *State) filter(keep func(*model.Revision) bool) []*model.Revision {
	var out []*model.Revision
	for _, r := range s.revs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Platform returns the platform context.
func (s *State) Platform() platform.Properties { return s.platform }

// SetPlatformProperties replaces the platform context. Resolved revisions
// are re-evaluated against it when they are next refreshed.
func (s *State) SetPlatformProperties(p platform.Properties) {
	if s.platform.Equal(p) {
		return
	}
	s.platform = p.Clone()
	s.system = map[*model.Revision][]*model.Capability{}
	s.touch()
}

// SetSelectionComparator installs a comparator that replaces the default
// candidate and singleton ordering. nil restores the default.
func (s *State) SetSelectionComparator(c resolver.Comparator) {
	s.comparator = c
}

// SystemCapabilities returns the platform packages exported by r, or nil
// when r is not the system revision. The capabilities are created once per
// platform so wires keep pointing at the same instances.
func (s *State) SystemCapabilities(r *model.Revision) []*model.Capability {
	if !s.platform.IsSystemName(r.SymbolicName()) {
		return nil
	}
	caps, ok := s.system[r]
	if !ok {
		caps = s.platform.SystemCapabilities(r)
		s.system[r] = caps
	}
	return caps
}

// graph adapts a State to the resolver's read interface.
type graph struct{ s *State }

func (g graph) Revisions() []*model.Revision { return g.s.revs }

func (g graph) IsDisabled(r *model.Revision) bool { return len(g.s.disabled[r]) > 0 }

func (g graph) SystemCapabilities(r *model.Revision) []*model.Capability {
	return g.s.SystemCapabilities(r)
}

func (s *State) resolverContext() resolver.Context {
	return resolver.Context{
		Platform:      s.platform,
		Comparator:    s.comparator,
		DevMode:       s.opts.DevMode,
		MaxIterations: s.opts.MaxIterations,
		Logger:        s.opts.Logger,
	}
}
