package resolver

import (
	"sort"

	"github.com/matzehuels/bundlewire/pkg/model"
)

// attach recomputes which fragments attach to which member hosts. A
// fragment attaches to every member host that will take it. Fragments that
// were attached before keep their place; new ones follow in insertion
// order. A fragment that does not fit a host is left out of that host only;
// the host and the other fragments are unaffected.
func (s *session) attach(p *plan) {
	p.attached = map[*model.Revision][]*model.Revision{}
	p.hosts = map[*model.Revision][]*model.Revision{}

	for _, h := range s.resolving {
		if !p.members[h] {
			continue
		}
		for _, f := range s.fragmentOrder(h) {
			if s.failed[f] != "" || p.excluded[f] || s.detached[h][f] {
				continue
			}
			if reason := s.misfit(p, f, h); reason != "" {
				s.log.Debug("fragment not attached", "fragment", f, "host", h, "reason", reason)
				continue
			}
			p.attached[h] = append(p.attached[h], f)
			p.hosts[f] = append(p.hosts[f], h)
		}
	}
}

// fragmentOrder returns the fragments that may attach to h: those attached
// in h's previous wiring first, then the others in insertion order.
func (s *session) fragmentOrder(h *model.Revision) []*model.Revision {
	var prev []*model.Revision
	if w := s.previous[h]; w != nil {
		prev = w.Fragments
	}
	rank := func(f *model.Revision) int {
		for i, pf := range prev {
			if pf == f {
				return i
			}
		}
		return len(prev) + s.order[f]
	}

	var out []*model.Revision
	for _, f := range s.resolving {
		if !f.IsFragment() {
			continue
		}
		for _, fh := range s.hostsOf[f] {
			if fh == h {
				out = append(out, f)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i]) < rank(out[j]) })
	return out
}

// misfit explains why f cannot join h's wiring, or returns "" when it can.
func (s *session) misfit(p *plan, f, h *model.Revision) string {
	for _, req := range f.Requirements() {
		if !req.Wired() || req.IsOptional() {
			continue
		}
		if len(s.available(p, h, req)) == 0 {
			return "unsatisfied " + req.String()
		}
	}
	if s.ctx.DevMode {
		return ""
	}

	// Package requirements the fragment shares with the host or with
	// fragments attached before it must agree on at least one provider.
	for _, req := range f.RequirementsOf(model.Package) {
		if !req.Wired() {
			continue
		}
		for _, other := range s.packageRequirements(p, h) {
			if other.Name == req.Name && !s.overlaps(p, h, req, other) {
				return "conflicts with " + other.String() + " of " + other.Revision().String()
			}
		}
	}
	return ""
}

// packageRequirements returns the package requirements currently in h's
// wiring: the host's own and those of fragments attached so far.
func (s *session) packageRequirements(p *plan, h *model.Revision) []*model.Requirement {
	reqs := h.RequirementsOf(model.Package)
	for _, f := range p.attached[h] {
		reqs = append(reqs, f.RequirementsOf(model.Package)...)
	}
	return reqs
}

// overlaps reports whether a and b, both package requirements in h's wiring,
// can be wired to the same capability. Two requirements without any
// available provider are compatible since neither will be wired.
func (s *session) overlaps(p *plan, h *model.Revision, a, b *model.Requirement) bool {
	as, bs := s.available(p, h, a), s.available(p, h, b)
	if len(as) == 0 && len(bs) == 0 {
		return true
	}
	for _, c := range as {
		if containsCandidate(bs, c) {
			return true
		}
	}
	return false
}
