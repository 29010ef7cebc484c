package resolver

import "github.com/matzehuels/bundlewire/pkg/model"

// plan is one provisional solution: the hosts that can resolve together,
// the fragments attached to them and the wires chosen for each host.
type plan struct {
	members  map[*model.Revision]bool              // non-fragment revisions that resolve
	excluded map[*model.Revision]bool              // singleton losers
	attached map[*model.Revision][]*model.Revision // host -> fragments, attachment order
	hosts    map[*model.Revision][]*model.Revision // fragment -> hosts
	wires    map[*model.Revision][]*model.Wire
	caps     map[*model.Revision][]*model.Capability
}

// requirements returns the effective requirements of host h: its own
// followed by those of each attached fragment.
func (p *plan) requirements(h *model.Revision) []*model.Requirement {
	reqs := append([]*model.Requirement(nil), h.Requirements()...)
	for _, f := range p.attached[h] {
		reqs = append(reqs, f.Requirements()...)
	}
	return reqs
}

func (p *plan) isAttached(f, h *model.Revision) bool {
	for _, a := range p.attached[h] {
		if a == f {
			return true
		}
	}
	return false
}

// plan computes the next provisional solution. It sets s.restart when
// singleton arbitration reopened resolved revisions and the universe
// changed underneath.
func (s *session) plan() *plan {
	p := &plan{excluded: map[*model.Revision]bool{}}
	for {
		s.satisfy(p)
		excluded := s.arbitrate(p)
		if s.restart {
			return p
		}
		if !excluded {
			break
		}
	}
	s.wire(p)
	return p
}

// satisfy computes the greatest set of hosts whose mandatory requirements
// can be met by fixed revisions and other members, attaching fragments
// along the way.
func (s *session) satisfy(p *plan) {
	p.members = map[*model.Revision]bool{}
	for _, r := range s.resolving {
		if !r.IsFragment() && s.failed[r] == "" && !p.excluded[r] {
			p.members[r] = true
		}
	}

	for {
		s.attach(p)
		changed := false
		for _, h := range s.resolving {
			if !p.members[h] {
				continue
			}
			for _, req := range h.Requirements() {
				if !req.Wired() || req.IsOptional() {
					continue
				}
				if len(s.available(p, h, req)) == 0 {
					s.log.Debug("requirement unsatisfied", "revision", h, "requirement", req)
					delete(p.members, h)
					changed = true
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}

// available returns the candidates for req in h's wiring whose provider
// takes part in plan p.
func (s *session) available(p *plan, h *model.Revision, req *model.Requirement) []candidate {
	var out []candidate
	for _, c := range s.candidates(h, req) {
		if s.live(p, c) {
			out = append(out, c)
		}
	}
	return out
}

func (s *session) live(p *plan, c candidate) bool {
	if s.fixed[c.provider] {
		return true
	}
	if c.provider.IsFragment() {
		return len(p.hosts[c.provider]) > 0
	}
	if !p.members[c.provider] {
		return false
	}
	if owner := c.cap.Revision(); owner != c.provider && owner.IsFragment() {
		return p.isAttached(owner, c.provider)
	}
	return true
}

// wire chooses the wires of every member and selects its capabilities.
func (s *session) wire(p *plan) {
	p.wires = map[*model.Revision][]*model.Wire{}
	p.caps = map[*model.Revision][]*model.Capability{}

	for _, h := range s.resolving {
		if !p.members[h] {
			continue
		}
		caps := append([]*model.Capability(nil), h.Capabilities()...)
		caps = append(caps, s.system[h]...)
		for _, f := range p.attached[h] {
			caps = append(caps, f.DeclaredCapabilities()...)
		}
		p.caps[h] = caps

		var wires []*model.Wire
		chosen := map[string]candidate{}
		for _, req := range p.requirements(h) {
			if !req.Wired() {
				continue
			}
			cs := s.available(p, h, req)
			if len(cs) == 0 {
				continue
			}
			if !req.IsMultiple() {
				pick := cs[0]
				if req.Namespace == model.Package {
					if prev, ok := chosen[req.Name]; ok && containsCandidate(cs, prev) {
						pick = prev
					} else if !ok {
						chosen[req.Name] = pick
					}
				}
				cs = []candidate{pick}
			}
			for _, c := range cs {
				wires = append(wires, &model.Wire{
					Requirer:    h,
					Requirement: req,
					Provider:    c.provider,
					Capability:  c.cap,
				})
			}
		}
		p.wires[h] = wires
	}
}

func containsCandidate(cs []candidate, c candidate) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}
