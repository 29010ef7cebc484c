package resolver

import (
	"github.com/charmbracelet/log"

	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/platform"
)

// DefaultMaxIterations bounds the fixed-point loop when Context leaves it unset.
const DefaultMaxIterations = 10000

// Comparator orders capabilities by preference. Compare returns a negative
// number when a is preferred over b, positive when b is preferred, and 0
// when the comparator has no opinion (insertion order then decides).
//
// An installed Comparator replaces the default policy entirely: it ranks
// candidate capabilities for every requirement, and identity capabilities
// when arbitrating between singletons.
type Comparator interface {
	Compare(a, b *model.Capability) int
}

// ComparatorFunc adapts a function to the Comparator interface.
type ComparatorFunc func(a, b *model.Capability) int

// Compare calls f(a, b).
func (f ComparatorFunc) Compare(a, b *model.Capability) int { return f(a, b) }

// Context carries everything a resolve pass reads besides the graph itself.
// It is built fresh for every call.
type Context struct {
	// Platform is the environment revisions are resolved against.
	Platform platform.Properties

	// Comparator overrides the default candidate and singleton ordering.
	Comparator Comparator

	// DevMode skips the uses-consistency check and the fragment overlap
	// check. It is also enabled by the platform's resolver mode property.
	DevMode bool

	// MaxIterations bounds the fixed-point loop (default: 10000).
	MaxIterations int

	// Logger receives debug output for each pass (default: log.Default()).
	Logger *log.Logger
}

// WithDefaults returns a copy with zero-value fields set to defaults.
func (c Context) WithDefaults() Context {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.Platform.DevMode() {
		c.DevMode = true
	}
	return c
}

// Graph is the resolver's read access to a State.
type Graph interface {
	// Revisions returns live and removal-pending revisions in insertion order.
	Revisions() []*model.Revision
	// IsDisabled reports whether r carries at least one DisabledInfo.
	IsDisabled(r *model.Revision) bool
	// SystemCapabilities returns the platform packages exported by r, or
	// nil when r is not the system revision.
	SystemCapabilities(r *model.Revision) []*model.Capability
}

// Request selects what a pass resolves.
type Request struct {
	// Subset lists revisions to (re-)resolve. Empty means every revision
	// not yet resolved. Resolved members are refreshed together with their
	// dependents.
	Subset []*model.Revision

	// AllowUnresolve lets the pass unresolve resolved revisions outside
	// Subset: dependents of removal-pending revisions are refreshed and
	// resolved singletons may be displaced by a higher-ranked one.
	AllowUnresolve bool
}

// Result is the outcome of a pass. The caller applies it to the graph.
type Result struct {
	// Wirings holds the new wiring of every revision resolved by the pass,
	// fragments included.
	Wirings map[*model.Revision]*model.Wiring

	// Unresolved lists revisions that had a wiring before the pass and
	// must lose it.
	Unresolved []*model.Revision

	// Iterations is the number of fixed-point rounds the pass needed.
	Iterations int

	// Considered is the number of revisions the pass tried to resolve.
	Considered int

	// Attempted lists those revisions in insertion order.
	Attempted []*model.Revision
}
