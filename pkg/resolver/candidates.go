package resolver

import (
	"sort"

	"github.com/matzehuels/bundlewire/pkg/model"
)

// buildUniverse indexes every capability that may be wired in this pass by
// namespace. Fixed revisions offer what their wiring selected; revisions
// being resolved offer their declarations, and fragment capabilities are
// offered once per potential host.
func (s *session) buildUniverse() {
	s.universe = map[model.Namespace][]candidate{}
	s.cands = map[reqKey][]candidate{}
	put := func(c *model.Capability, provider *model.Revision) {
		s.universe[c.Namespace] = append(s.universe[c.Namespace], candidate{cap: c, provider: provider})
	}

	for _, r := range s.all {
		switch {
		case s.fixed[r]:
			for _, c := range r.Wiring().Capabilities {
				put(c, r)
			}
		case !s.inResolving[r] || s.failed[r] != "":
		case r.IsFragment():
			if id := r.IdentityCapability(); id != nil {
				put(id, r)
			}
			for _, h := range s.hostsOf[r] {
				for _, c := range r.DeclaredCapabilities() {
					put(c, h)
				}
			}
		default:
			for _, c := range r.Capabilities() {
				put(c, r)
			}
			for _, c := range s.system[r] {
				put(c, r)
			}
		}
	}
}

// candidates returns the ordered capabilities that may satisfy req in the
// wiring of host, minus those dropped after uses conflicts.
func (s *session) candidates(host *model.Revision, req *model.Requirement) []candidate {
	key := reqKey{host, req}
	if cs, ok := s.cands[key]; ok {
		return cs
	}
	var out []candidate
	for _, c := range s.universe[req.Namespace] {
		if s.dropped[key][c] || !s.matches(req, c.cap) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return s.less(host, req, out[i], out[j]) })
	s.cands[key] = out
	return out
}

// invalidate forgets the cached candidate list of one requirement.
func (s *session) invalidate(key reqKey) {
	delete(s.cands, key)
}

// less orders candidates for req. A comparator decides alone, falling back
// to insertion order on ties.
func (s *session) less(host *model.Revision, req *model.Requirement, a, b candidate) bool {
	if s.ctx.Comparator != nil {
		if c := s.ctx.Comparator.Compare(a.cap, b.cap); c != 0 {
			return c < 0
		}
		return s.before(a, b)
	}

	if ta, tb := s.tier(host, req, a), s.tier(host, req, b); ta != tb {
		return ta < tb
	}
	if c := a.cap.Version.Compare(b.cap.Version); c != 0 {
		return c > 0
	}
	return s.before(a, b)
}

func (s *session) before(a, b candidate) bool {
	if oa, ob := s.order[a.provider], s.order[b.provider]; oa != ob {
		return oa < ob
	}
	return a.cap.Index() < b.cap.Index()
}

// tier ranks a candidate for resolution stability: the capability this
// requirement was wired to before, then providers that are or were
// resolved, then the rest.
func (s *session) tier(host *model.Revision, req *model.Requirement, c candidate) int {
	if prev := s.previous[host]; prev != nil {
		for _, w := range prev.Required {
			if w.Requirement == req && w.Capability == c.cap && w.Provider == c.provider {
				return 0
			}
		}
	}
	if s.fixed[c.provider] || s.previous[c.provider] != nil {
		return 1
	}
	return 2
}

// rankCaps orders two capabilities the same way candidates are ordered,
// without a requirement context. Negative means a ranks higher.
func (s *session) rankCaps(a, b candidate) int {
	if s.ctx.Comparator != nil {
		if c := s.ctx.Comparator.Compare(a.cap, b.cap); c != 0 {
			return c
		}
		return 0
	}
	sa, sb := s.settled(a.provider), s.settled(b.provider)
	if sa != sb {
		if sa {
			return -1
		}
		return 1
	}
	return -a.cap.Version.Compare(b.cap.Version)
}

// settled reports whether r is resolved outside this pass or was resolved
// before it.
func (s *session) settled(r *model.Revision) bool {
	return s.fixed[r] || s.previous[r] != nil
}
