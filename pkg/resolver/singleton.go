package resolver

import (
	"sort"

	"github.com/matzehuels/bundlewire/pkg/model"
)

// arbitrate keeps at most one singleton per symbolic name. Losers among the
// revisions being resolved are excluded from p; it reports whether anything
// new was excluded. A resolved singleton outranked by a newcomer is displaced
// only when the request allows unresolving, in which case the session
// restarts with the displaced revisions reopened.
func (s *session) arbitrate(p *plan) bool {
	var names []string
	groups := map[string][]*model.Revision{}
	for _, r := range s.all {
		if !r.IsSingleton() || r.SymbolicName() == "" || !s.contending(p, r) {
			continue
		}
		name := r.SymbolicName()
		if _, ok := groups[name]; !ok {
			names = append(names, name)
		}
		groups[name] = append(groups[name], r)
	}

	excluded := false
	for _, name := range names {
		group := groups[name]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool { return s.singletonLess(group[i], group[j]) })

		winner := group[0]
		if !s.fixed[winner] {
			var resolved []*model.Revision
			for _, r := range group[1:] {
				if s.fixed[r] {
					resolved = append(resolved, r)
				}
			}
			if len(resolved) > 0 {
				if s.req.AllowUnresolve {
					s.log.Debug("singleton displaced", "name", name, "winner", winner, "displaced", len(resolved))
					s.displace(resolved)
					return false
				}
				winner = resolved[0]
			}
		}

		for _, r := range group {
			if r == winner || s.fixed[r] || p.excluded[r] {
				continue
			}
			s.log.Debug("singleton excluded", "revision", r, "winner", winner)
			p.excluded[r] = true
			excluded = true
		}
	}
	return excluded
}

// contending reports whether r is resolved or could resolve in p.
func (s *session) contending(p *plan, r *model.Revision) bool {
	if s.fixed[r] {
		return true
	}
	if p.excluded[r] {
		return false
	}
	if r.IsFragment() {
		return len(p.hosts[r]) > 0
	}
	return p.members[r]
}

// singletonLess ranks singleton a before b. A comparator ranks identity
// capabilities; the default prefers revisions that are or were resolved,
// then the higher version.
func (s *session) singletonLess(a, b *model.Revision) bool {
	if s.ctx.Comparator != nil {
		if c := s.ctx.Comparator.Compare(a.IdentityCapability(), b.IdentityCapability()); c != 0 {
			return c < 0
		}
		return s.order[a] < s.order[b]
	}
	if sa, sb := s.settled(a), s.settled(b); sa != sb {
		return sa
	}
	if c := a.Version().Compare(b.Version()); c != 0 {
		return c > 0
	}
	return s.order[a] < s.order[b]
}

// displace reopens resolved revisions and their dependents so the pass may
// re-resolve or drop them.
func (s *session) displace(revs []*model.Revision) {
	for r := range dependentClosure(revs) {
		if !s.fixed[r] {
			continue
		}
		delete(s.fixed, r)
		s.previous[r] = r.Wiring()
		s.inResolving[r] = true
	}
	s.resolving = s.resolving[:0]
	for _, r := range s.all {
		if s.inResolving[r] {
			s.resolving = append(s.resolving, r)
		}
	}
	s.checkStatic()
	s.buildUniverse()
	s.restart = true
}
