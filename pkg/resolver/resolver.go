// Package resolver computes consistent wirings for a graph of revisions.
//
// A pass starts from the requested subset, pulls in every unresolved
// revision it could need, and then iterates towards a fixed point:
//
//  1. find the revisions whose mandatory requirements can all be met by
//     revisions still in the running (fragments attach to hosts here);
//  2. arbitrate between singletons sharing a symbolic name;
//  3. wire every requirement greedily to its best available candidate;
//  4. check each revision's package space for uses conflicts and, on a
//     conflict, drop the losing candidate and start over.
//
// Unsatisfiable revisions simply stay unresolved. The only fatal outcome is
// exceeding Context.MaxIterations. The loop terminates because every round
// that does not reach the fixed point permanently removes at least one
// candidate.
package resolver

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/model"
)

// candidate is a capability offered by a specific provider. Fragment
// capabilities are offered by each host the fragment attaches to.
type candidate struct {
	cap      *model.Capability
	provider *model.Revision
}

type reqKey struct {
	host *model.Revision
	req  *model.Requirement
}

type session struct {
	ctx   Context
	graph Graph
	req   Request
	log   *log.Logger

	all   []*model.Revision
	order map[*model.Revision]int

	fixed         map[*model.Revision]bool          // resolved and left untouched
	previous      map[*model.Revision]*model.Wiring // wirings of revisions being re-resolved
	resolving     []*model.Revision                 // insertion order
	inResolving   map[*model.Revision]bool
	attachRefresh map[*model.Revision]bool // resolved hosts reopened for new fragments
	released      []*model.Revision        // pending revisions whose wiring is dropped
	failed        map[*model.Revision]string
	dropped       map[reqKey]map[candidate]bool                // removed after uses conflicts
	detached      map[*model.Revision]map[*model.Revision]bool // host -> fragments whose exports conflict
	hostsOf       map[*model.Revision][]*model.Revision
	system        map[*model.Revision][]*model.Capability

	universe map[model.Namespace][]candidate
	cands    map[reqKey][]candidate
	restart  bool
}

// Resolve runs one resolve pass over g.
func Resolve(ctx Context, g Graph, req Request) (*Result, error) {
	ctx = ctx.WithDefaults()
	start := time.Now()

	s := &session{
		ctx:           ctx,
		graph:         g,
		req:           req,
		log:           ctx.Logger,
		order:         map[*model.Revision]int{},
		fixed:         map[*model.Revision]bool{},
		previous:      map[*model.Revision]*model.Wiring{},
		inResolving:   map[*model.Revision]bool{},
		attachRefresh: map[*model.Revision]bool{},
		failed:        map[*model.Revision]string{},
		dropped:       map[reqKey]map[candidate]bool{},
		detached:      map[*model.Revision]map[*model.Revision]bool{},
		hostsOf:       map[*model.Revision][]*model.Revision{},
		system:        map[*model.Revision][]*model.Capability{},
	}
	s.prepare()

	for iter := 1; ; iter++ {
		if iter > ctx.MaxIterations {
			limit := &errors.IterationLimitError{Limit: ctx.MaxIterations, Unresolved: len(s.resolving)}
			return nil, errors.Wrap(errors.ErrCodeIterationLimit, limit, "resolve")
		}

		p := s.plan()
		if s.restart {
			s.restart = false
			continue
		}

		var conflicts []*conflict
		if !ctx.DevMode {
			conflicts = s.checkUses(p)
		}
		if len(conflicts) == 0 {
			res := s.commit(p)
			res.Iterations = iter
			s.log.Debug("resolve pass complete",
				"iterations", iter,
				"considered", res.Considered,
				"resolved", len(res.Wirings),
				"unresolved", len(res.Unresolved),
				"duration", time.Since(start))
			return res, nil
		}
		s.applyConflicts(conflicts)
	}
}

// prepare computes the refresh set, the fixed set and the closure of
// revisions to resolve.
func (s *session) prepare() {
	s.all = s.graph.Revisions()
	for i, r := range s.all {
		s.order[r] = i
		if r.Lifecycle() != model.RemovalPending && s.ctx.Platform.IsSystemName(r.SymbolicName()) {
			s.system[r] = s.graph.SystemCapabilities(r)
		}
	}

	refresh := s.refreshSet()
	for _, r := range s.all {
		switch {
		case refresh[r] && r.Lifecycle() == model.RemovalPending:
			s.released = append(s.released, r)
		case refresh[r]:
			s.previous[r] = r.Wiring()
		case r.IsResolved() && r.Lifecycle() != model.RemovalPending:
			s.fixed[r] = true
		}
	}

	var targets []*model.Revision
	if len(s.req.Subset) == 0 {
		for _, r := range s.all {
			if s.candidateForResolve(r) {
				targets = append(targets, r)
			}
		}
	} else {
		seen := map[*model.Revision]bool{}
		for _, r := range s.req.Subset {
			if !seen[r] && s.candidateForResolve(r) {
				seen[r] = true
				targets = append(targets, r)
			}
		}
		for _, r := range s.all {
			if refresh[r] && !seen[r] && s.candidateForResolve(r) {
				seen[r] = true
				targets = append(targets, r)
			}
		}
	}

	s.closure(targets)
	s.checkStatic()
	s.buildUniverse()

	s.log.Debug("resolve pass prepared",
		"targets", len(targets),
		"resolving", len(s.resolving),
		"fixed", len(s.fixed),
		"refreshed", len(s.previous),
		"released", len(s.released))
}

// candidateForResolve reports whether r may take part in this pass.
func (s *session) candidateForResolve(r *model.Revision) bool {
	if r.Lifecycle() != model.Owned || s.fixed[r] {
		return false
	}
	return !s.graph.IsDisabled(r)
}

// refreshSet returns the revisions whose wiring is rebuilt: resolved or
// pending members of the subset, every pending revision when unresolving
// is allowed, and the transitive dependents of all of those.
func (s *session) refreshSet() map[*model.Revision]bool {
	var roots []*model.Revision
	for _, r := range s.req.Subset {
		if r.IsResolved() || r.Lifecycle() == model.RemovalPending {
			roots = append(roots, r)
		}
	}
	if s.req.AllowUnresolve {
		for _, r := range s.all {
			if r.Lifecycle() == model.RemovalPending {
				roots = append(roots, r)
			}
		}
	}
	return dependentClosure(roots)
}

// dependentClosure follows provided wires and fragment attachments from
// roots and returns every revision reached, roots included.
func dependentClosure(roots []*model.Revision) map[*model.Revision]bool {
	set := map[*model.Revision]bool{}
	queue := append([]*model.Revision(nil), roots...)
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		if set[r] {
			continue
		}
		set[r] = true
		w := r.Wiring()
		if w == nil {
			continue
		}
		for _, wire := range w.Provided {
			if !set[wire.Requirer] {
				queue = append(queue, wire.Requirer)
			}
		}
		queue = append(queue, w.Hosts()...)
		queue = append(queue, w.Fragments...)
	}
	return set
}

// closure adds targets and every revision they may need to the resolving
// set. Resolved hosts that could take a new fragment are reopened.
func (s *session) closure(targets []*model.Revision) {
	queue := append([]*model.Revision(nil), targets...)
	add := func(r *model.Revision) {
		if !s.inResolving[r] {
			queue = append(queue, r)
		}
	}

	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		if s.inResolving[r] {
			continue
		}
		s.inResolving[r] = true

		if r.IsFragment() {
			for _, h := range s.all {
				if h.IsFragment() || !s.hostMatches(r, h) {
					continue
				}
				switch {
				case s.fixed[h]:
					for _, f := range s.reopen(h) {
						add(f)
					}
					add(h)
				case s.candidateForResolve(h):
					add(h)
				}
			}
		} else {
			for _, f := range s.all {
				if f.IsFragment() && s.candidateForResolve(f) && s.hostMatches(f, r) {
					add(f)
				}
			}
		}

		for _, req := range r.Requirements() {
			if !req.Wired() {
				continue
			}
			for _, p := range s.all {
				if p != r && !s.inResolving[p] && s.candidateForResolve(p) && s.offers(p, req) {
					add(p)
				}
			}
		}
	}

	for _, r := range s.all {
		if s.inResolving[r] {
			s.resolving = append(s.resolving, r)
		}
	}
}

// reopen moves a resolved host back into the resolving set so that new
// fragments can attach, and returns its attached fragments, which follow
// it. If the host fails to re-resolve it keeps its previous wiring.
func (s *session) reopen(h *model.Revision) []*model.Revision {
	delete(s.fixed, h)
	s.attachRefresh[h] = true
	s.previous[h] = h.Wiring()
	var frags []*model.Revision
	for _, f := range h.Wiring().Fragments {
		if s.fixed[f] {
			delete(s.fixed, f)
			s.previous[f] = f.Wiring()
			frags = append(frags, f)
		}
	}
	return frags
}

// offers reports whether p declares or implies a capability matching req.
func (s *session) offers(p *model.Revision, req *model.Requirement) bool {
	for _, c := range p.Capabilities() {
		if s.matches(req, c) {
			return true
		}
	}
	for _, c := range s.system[p] {
		if s.matches(req, c) {
			return true
		}
	}
	return false
}

// checkStatic records failures that no choice of wires can fix: platform
// filters and platform-provided requirements.
func (s *session) checkStatic() {
	for _, r := range s.resolving {
		if pf := r.PlatformFilter(); pf != nil && !s.ctx.Platform.Match(pf) {
			s.fail(r, "platform filter "+pf.String()+" does not match")
			continue
		}
		for _, req := range r.Requirements() {
			if !req.Namespace.PlatformProvided() || req.Effective != model.EffectiveResolve || req.IsOptional() {
				continue
			}
			if !s.ctx.Platform.Satisfies(req) {
				s.fail(r, "platform does not provide "+req.String())
				break
			}
		}
	}
	s.hostsOf = map[*model.Revision][]*model.Revision{}
	for _, f := range s.resolving {
		if !f.IsFragment() {
			continue
		}
		for _, h := range s.resolving {
			if !h.IsFragment() && s.failed[h] == "" && s.hostMatches(f, h) {
				s.hostsOf[f] = append(s.hostsOf[f], h)
			}
		}
	}
}

func (s *session) fail(r *model.Revision, reason string) {
	if _, ok := s.failed[r]; ok {
		return
	}
	s.failed[r] = reason
	s.log.Debug("revision cannot resolve", "revision", r, "reason", reason)
}

// hostMatches reports whether h can host fragment f on declaration grounds.
func (s *session) hostMatches(f, h *model.Revision) bool {
	for _, c := range h.CapabilitiesOf(model.Host) {
		if s.matches(f.Host(), c) {
			return true
		}
	}
	return false
}

// matches is Requirement.Matches with system bundle aliases applied.
func (s *session) matches(req *model.Requirement, c *model.Capability) bool {
	kind := req.Namespace.Kind()
	if (kind == model.KindBundle || kind == model.KindHost) && req.Name != c.Name &&
		s.ctx.Platform.IsSystemName(req.Name) && s.ctx.Platform.IsSystemName(c.Name) {
		alias := *req
		alias.Name = c.Name
		return alias.Matches(c)
	}
	return req.Matches(c)
}

// commit turns the final plan into a Result.
func (s *session) commit(p *plan) *Result {
	res := &Result{
		Wirings:    map[*model.Revision]*model.Wiring{},
		Considered: len(s.resolving),
		Attempted:  append([]*model.Revision(nil), s.resolving...),
	}

	for _, r := range s.resolving {
		if r.IsFragment() || !p.members[r] {
			continue
		}
		w := &model.Wiring{
			Revision:     r,
			Required:     p.wires[r],
			Capabilities: p.caps[r],
			Requirements: p.requirements(r),
			Fragments:    p.attached[r],
		}
		res.Wirings[r] = w
	}
	for _, f := range s.resolving {
		if !f.IsFragment() || len(p.hosts[f]) == 0 {
			continue
		}
		w := &model.Wiring{
			Revision:     f,
			Capabilities: []*model.Capability{f.IdentityCapability()},
			Requirements: []*model.Requirement{f.Host()},
		}
		for _, h := range p.hosts[f] {
			w.Required = append(w.Required, &model.Wire{
				Requirer:    f,
				Requirement: f.Host(),
				Provider:    h,
				Capability:  hostCapability(h),
			})
		}
		res.Wirings[f] = w
	}

	// A reopened host that failed, or gained no fragment, keeps its old
	// wiring, and so do the fragments that were attached to it.
	for _, h := range s.resolving {
		if !s.attachRefresh[h] {
			continue
		}
		prev := s.previous[h]
		if w, ok := res.Wirings[h]; ok && !sameRevisions(w.Fragments, prev.Fragments) {
			continue
		}
		s.log.Debug("reopened host kept its wiring", "host", h)
		delete(res.Wirings, h)
		delete(s.previous, h)
		for _, f := range prev.Fragments {
			if w, ok := res.Wirings[f]; !ok || sameRevisions(w.Hosts(), f.Wiring().Hosts()) {
				delete(res.Wirings, f)
				delete(s.previous, f)
			}
		}
	}

	for _, r := range s.all {
		if _, ok := s.previous[r]; !ok {
			continue
		}
		if _, ok := res.Wirings[r]; !ok && s.previous[r] != nil {
			res.Unresolved = append(res.Unresolved, r)
		}
	}
	res.Unresolved = append(res.Unresolved, s.released...)
	return res
}

func sameRevisions(a, b []*model.Revision) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hostCapability(h *model.Revision) *model.Capability {
	caps := h.CapabilitiesOf(model.Host)
	if len(caps) == 0 {
		return nil
	}
	return caps[0]
}
