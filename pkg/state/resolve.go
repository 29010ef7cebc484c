package state

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/bundlewire/pkg/delta"
	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/observability"
	"github.com/matzehuels/bundlewire/pkg/resolver"
)

// Resolve runs a resolve pass and returns what changed since the previous
// one. An empty subset resolves every unresolved revision; resolved members
// of subset are refreshed together with their dependents. allowUnresolve
// lets the pass refresh dependents of removal-pending revisions and displace
// resolved singletons.
func (s *State) Resolve(ctx context.Context, subset []*model.Revision, allowUnresolve bool) (delta.StateDelta, error) {
	for _, r := range subset {
		if err := r.CheckOwner(s); err != nil {
			return delta.StateDelta{}, err
		}
	}

	hooks := observability.Resolve()
	hooks.OnResolveStart(ctx, len(s.revs))
	start := time.Now()

	res, err := resolver.Resolve(s.resolverContext(), graph{s}, resolver.Request{
		Subset:         subset,
		AllowUnresolve: allowUnresolve,
	})
	if err != nil {
		hooks.OnResolveComplete(ctx, observability.ResolveStats{}, time.Since(start), err)
		return delta.StateDelta{}, err
	}

	released := s.apply(res)
	followups := s.settle(res)
	next := delta.Take(s.revs)
	d := delta.Diff(s.last, next)
	s.last = next
	if !d.IsEmpty() {
		s.touch()
	}

	stats := observability.ResolveStats{
		Considered: res.Considered,
		Resolved:   len(res.Wirings),
		Unresolved: len(res.Unresolved),
		Iterations: res.Iterations,
		Changes:    d.Len(),
	}
	hooks.OnResolveComplete(ctx, stats, time.Since(start), nil)
	s.opts.Logger.Debug("state resolved",
		"resolved", len(s.ResolvedRevisions()),
		"revisions", len(s.Revisions()),
		"released", released,
		"followups", followups,
		"changes", d.Len())
	return d, nil
}

// settle re-runs the pass for revisions the first pass attempted but left
// unresolved, now that its wirings are committed, until a pass resolves
// nothing new. Candidates a pass drops after a uses conflict stay dropped
// for that pass only, so a revision can fail in one pass and resolve in the
// next. Settling here makes a repeated Resolve a no-op. Follow-up passes
// never unresolve anything. It returns the number of follow-up passes.
func (s *State) settle(res *resolver.Result) int {
	passes := 0
	for passes < len(s.revs) {
		var retry []*model.Revision
		for _, r := range res.Attempted {
			if r.Lifecycle() == model.Owned && !r.IsResolved() {
				retry = append(retry, r)
			}
		}
		if len(retry) == 0 {
			break
		}
		next, err := resolver.Resolve(s.resolverContext(), graph{s}, resolver.Request{Subset: retry})
		passes++
		if err != nil {
			s.opts.Logger.Warn("follow-up resolve pass failed", "retry", len(retry), "err", err)
			break
		}
		if len(next.Wirings) == 0 {
			break
		}
		s.apply(next)
		res = next
	}
	return passes
}

// ResolveAll refreshes every live revision and releases every
// removal-pending one that nothing needs any more.
func (s *State) ResolveAll(ctx context.Context) (delta.StateDelta, error) {
	return s.Resolve(ctx, s.Revisions(), true)
}

// apply installs a resolver result, releases the removal-pending revisions
// nothing live still reaches and rebuilds provided wires. It returns the
// number of released revisions.
func (s *State) apply(res *resolver.Result) int {
	for _, r := range res.Unresolved {
		r.SetWiring(nil)
	}
	for r, w := range res.Wirings {
		r.SetWiring(w)
	}

	reached := s.reachedFromLive()
	released := 0
	for _, r := range s.RemovalPending() {
		if !reached[r] {
			s.opts.Logger.Debug("revision released", "revision", r)
			s.drop(r)
			released++
		}
	}

	s.rebuildProvided()
	return released
}

// reachedFromLive returns the removal-pending revisions that some live
// wiring still depends on, directly or through other pending revisions. A
// wiring depends on the providers of its wires and on the fragments merged
// into it.
func (s *State) reachedFromLive() map[*model.Revision]bool {
	reached := map[*model.Revision]bool{}
	var queue []*model.Revision
	for _, r := range s.revs {
		if r.Lifecycle() == model.Owned {
			queue = append(queue, r)
		}
	}
	visit := func(r *model.Revision) {
		if r.Lifecycle() == model.RemovalPending && !reached[r] {
			reached[r] = true
			queue = append(queue, r)
		}
	}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		w := r.Wiring()
		if w == nil {
			continue
		}
		for _, wire := range w.Required {
			visit(wire.Provider)
		}
		for _, f := range w.Fragments {
			visit(f)
		}
	}
	return reached
}

// rebuildProvided recomputes every wiring's provided wires from the
// required wires of all revisions.
func (s *State) rebuildProvided() {
	for _, r := range s.revs {
		if w := r.Wiring(); w != nil {
			w.Provided = nil
		}
	}
	for _, r := range s.revs {
		w := r.Wiring()
		if w == nil {
			continue
		}
		for _, wire := range w.Required {
			if pw := wire.Provider.Wiring(); pw != nil {
				pw.Provided = append(pw.Provided, wire)
			}
		}
	}
}

// Changes returns what changed since the last resolve without resolving.
func (s *State) Changes() delta.StateDelta {
	return delta.Diff(s.last, delta.Take(s.revs))
}

// Compare returns the changes that turn base into s. Revisions are matched
// by id since the two States hold different instances.
func (s *State) Compare(base *State) delta.StateDelta {
	return delta.Diff(delta.Take(base.revs), delta.Take(s.revs))
}

// LinkDynamicImport wires pkg for rev through one of its dynamic
// requirements and returns the chosen capability, or nil when no resolved
// exporter fits. The wire is committed at once; no resolve pass runs.
func (s *State) LinkDynamicImport(ctx context.Context, rev *model.Revision, pkg string) (*model.Capability, error) {
	if err := rev.CheckOwner(s); err != nil {
		return nil, err
	}
	wire, err := resolver.LinkDynamicImport(s.resolverContext(), graph{s}, rev, pkg)
	observability.Resolve().OnDynamicImport(ctx, pkg, wire != nil)
	if err != nil || wire == nil {
		return nil, err
	}

	w := rev.Wiring()
	w.Required = append(w.Required, wire)
	pw := wire.Provider.Wiring()
	pw.Provided = append(pw.Provided, wire)
	s.touch()
	return wire.Capability, nil
}

// Image is the persisted form of a State's graph.
type Image struct {
	ID        uuid.UUID
	Timestamp int64
	Revisions []*model.Revision // insertion order, removal-pending included
	Pending   map[*model.Revision]bool
	Wirings   map[*model.Revision]*model.Wiring
	Disabled  []model.DisabledInfo
}

// Restore installs a persisted graph into an empty State. Wirings may refer
// to capabilities returned by s.SystemCapabilities. After Restore the State
// reports no changes until it is mutated.
func (s *State) Restore(img Image) error {
	if len(s.revs) > 0 {
		return errors.New(errors.ErrCodeInternal, "restore into a non-empty state")
	}
	live := map[int64]bool{}
	for _, r := range img.Revisions {
		if !img.Pending[r] {
			if live[r.ID()] {
				return errors.New(errors.ErrCodeInvalidInput, "revision id %d is used twice", r.ID())
			}
			live[r.ID()] = true
		}
		if err := r.Claim(s); err != nil {
			return err
		}
		if img.Pending[r] {
			r.MarkRemovalPending()
		}
		s.revs = append(s.revs, r)
	}
	for r, w := range img.Wirings {
		if err := r.CheckOwner(s); err != nil {
			return err
		}
		r.SetWiring(w)
	}
	for _, info := range img.Disabled {
		if err := info.Revision.CheckOwner(s); err != nil {
			return err
		}
		s.disabled[info.Revision] = append(s.disabled[info.Revision], info)
	}
	s.rebuildProvided()
	s.id = img.ID
	s.timestamp = img.Timestamp
	s.last = delta.Take(s.revs)
	return nil
}

// Image returns the persisted form of s. The returned maps and slices are
// fresh; revisions and wirings are shared.
func (s *State) Image() Image {
	img := Image{
		ID:        s.id,
		Timestamp: s.timestamp,
		Revisions: s.All(),
		Pending:   map[*model.Revision]bool{},
		Wirings:   map[*model.Revision]*model.Wiring{},
	}
	for _, r := range s.revs {
		if r.Lifecycle() == model.RemovalPending {
			img.Pending[r] = true
		}
		if w := r.Wiring(); w != nil {
			img.Wirings[r] = w
		}
		img.Disabled = append(img.Disabled, s.disabled[r]...)
	}
	return img
}
