package resolver

import (
	"sort"

	"github.com/matzehuels/bundlewire/pkg/model"
)

// view is the wiring the uses checker reads: the provisional plan for
// revisions being resolved and committed wirings for everything else.
type view interface {
	wires(r *model.Revision) []*model.Wire
	caps(r *model.Revision) []*model.Capability
}

type planView struct {
	p *plan
}

func (v planView) wires(r *model.Revision) []*model.Wire {
	if v.p.members[r] {
		return v.p.wires[r]
	}
	if w := r.Wiring(); w != nil {
		return w.Required
	}
	return nil
}

func (v planView) caps(r *model.Revision) []*model.Capability {
	if v.p.members[r] {
		return v.p.caps[r]
	}
	if w := r.Wiring(); w != nil {
		return w.Capabilities
	}
	return nil
}

// source is a package capability as seen by one revision, with the wire
// of that revision that brought it into view (nil for own exports). frag
// is set when the capability is an export merged from an attached fragment.
type source struct {
	cap  *model.Capability
	prov *model.Revision
	root *model.Wire
	frag *model.Revision
}

// conflict records two roots of rev that expose different capabilities
// for the same package. frag is set when one side is an export of a
// fragment attached to rev; that fragment is detached rather than any wire
// of rev given up.
type conflict struct {
	rev  *model.Revision
	pkg  string
	a, b *model.Wire
	frag *model.Revision
}

func fragmentOf(a, b source) *model.Revision {
	if a.frag != nil {
		return a.frag
	}
	return b.frag
}

// checker computes package spaces and uses closures over a view.
type checker struct {
	v view
}

// check returns the first uses conflict of r, or nil.
func (c checker) check(r *model.Revision) *conflict {
	visible, clash := c.packageSpace(r)
	if clash != nil {
		return clash
	}

	// origin is the entry of r's space whose uses closure is being walked.
	constraints := map[string]source{}
	var walk func(src, origin source, seen map[*model.Capability]bool) *conflict
	walk = func(src, origin source, seen map[*model.Capability]bool) *conflict {
		if seen[src.cap] {
			return nil
		}
		seen[src.cap] = true
		for _, u := range src.cap.Uses {
			target, ok := c.lookup(r, visible, src.prov, u)
			if !ok {
				continue
			}
			if vis, ok := visible[u]; ok && vis.cap != target.cap {
				return &conflict{rev: r, pkg: u, a: vis.root, b: origin.root, frag: fragmentOf(vis, origin)}
			}
			if prior, ok := constraints[u]; ok && prior.cap != target.cap {
				return &conflict{rev: r, pkg: u, a: prior.root, b: origin.root, frag: fragmentOf(prior, origin)}
			}
			constraints[u] = source{cap: target.cap, prov: target.prov, root: origin.root, frag: origin.frag}
			if cf := walk(target, origin, seen); cf != nil {
				return cf
			}
		}
		return nil
	}

	for _, name := range sortedKeys(visible) {
		src := visible[name]
		if cf := walk(src, src, map[*model.Capability]bool{}); cf != nil {
			return cf
		}
	}
	for _, w := range c.v.wires(r) {
		if w.Capability.Namespace.IsGeneric() {
			src := source{cap: w.Capability, prov: w.Provider, root: w}
			if cf := walk(src, src, map[*model.Capability]bool{}); cf != nil {
				return cf
			}
		}
	}
	return nil
}

// packageSpace returns the packages r can see: imports first, then the
// packages of required bundles, then its own exports not hidden by an
// import. Two imports of the same package wired to different capabilities
// are reported as a conflict.
func (c checker) packageSpace(r *model.Revision) (map[string]source, *conflict) {
	visible := map[string]source{}
	wires := c.v.wires(r)
	for _, w := range wires {
		if w.Capability.Namespace != model.Package {
			continue
		}
		name := w.Capability.Name
		if prior, ok := visible[name]; ok {
			if prior.cap != w.Capability {
				return nil, &conflict{rev: r, pkg: name, a: prior.root, b: w}
			}
			continue
		}
		visible[name] = source{cap: w.Capability, prov: w.Provider, root: w}
	}
	for _, w := range wires {
		if w.Capability.Namespace != model.Bundle {
			continue
		}
		for _, src := range c.bundlePackages(w.Provider, map[*model.Revision]bool{}) {
			if _, ok := visible[src.cap.Name]; !ok {
				src.root = w
				visible[src.cap.Name] = src
			}
		}
	}
	for _, cap := range c.v.caps(r) {
		if cap.Namespace != model.Package {
			continue
		}
		if _, ok := visible[cap.Name]; !ok {
			src := source{cap: cap, prov: r}
			if owner := cap.Revision(); owner != r && owner.IsFragment() {
				src.frag = owner
			}
			visible[cap.Name] = src
		}
	}
	return visible, nil
}

// bundlePackages returns the packages a bundle requirement on b exposes:
// b's exports and, recursively, those of bundles b re-exports.
func (c checker) bundlePackages(b *model.Revision, seen map[*model.Revision]bool) []source {
	if seen[b] {
		return nil
	}
	seen[b] = true
	var out []source
	for _, cap := range c.v.caps(b) {
		if cap.Namespace == model.Package {
			out = append(out, source{cap: cap, prov: b})
		}
	}
	for _, w := range c.v.wires(b) {
		if w.Capability.Namespace == model.Bundle && w.Requirement.Visibility == model.Reexport {
			out = append(out, c.bundlePackages(w.Provider, seen)...)
		}
	}
	return out
}

// lookup resolves package pkg as provider prov sees it. For the revision
// being checked this is its own package space.
func (c checker) lookup(r *model.Revision, visible map[string]source, prov *model.Revision, pkg string) (source, bool) {
	if prov == r {
		src, ok := visible[pkg]
		return src, ok
	}
	wires := c.v.wires(prov)
	for _, w := range wires {
		if w.Capability.Namespace == model.Package && w.Capability.Name == pkg {
			return source{cap: w.Capability, prov: w.Provider}, true
		}
	}
	for _, w := range wires {
		if w.Capability.Namespace != model.Bundle {
			continue
		}
		for _, src := range c.bundlePackages(w.Provider, map[*model.Revision]bool{}) {
			if src.cap.Name == pkg {
				return src, true
			}
		}
	}
	for _, cap := range c.v.caps(prov) {
		if cap.Namespace == model.Package && cap.Name == pkg {
			return source{cap: cap, prov: prov}, true
		}
	}
	return source{}, false
}

// checkUses returns one conflict per member of p that has any.
func (s *session) checkUses(p *plan) []*conflict {
	c := checker{v: planView{p}}
	var out []*conflict
	for _, r := range s.resolving {
		if !p.members[r] {
			continue
		}
		if cf := c.check(r); cf != nil {
			s.log.Debug("uses conflict", "revision", r, "package", cf.pkg)
			out = append(out, cf)
			continue
		}
		if cf := s.checkDependents(c, p, r); cf != nil {
			out = append(out, cf)
		}
	}
	return out
}

// checkDependents checks the resolved revisions that depend on h when h was
// reopened and takes new fragments. Their wires stay fixed, so a conflict
// in any of them detaches the newest of h's new fragments.
func (s *session) checkDependents(c checker, p *plan, h *model.Revision) *conflict {
	if !s.attachRefresh[h] {
		return nil
	}
	var newest *model.Revision
	for _, f := range p.attached[h] {
		if !containsRevision(s.previous[h].Fragments, f) {
			newest = f
		}
	}
	if newest == nil {
		return nil
	}
	for d := range dependentClosure([]*model.Revision{h}) {
		if !s.fixed[d] || d.IsFragment() {
			continue
		}
		if cf := c.check(d); cf != nil {
			s.log.Debug("uses conflict in dependent", "revision", d, "host", h, "package", cf.pkg)
			return &conflict{rev: h, pkg: cf.pkg, frag: newest}
		}
	}
	return nil
}

func containsRevision(revs []*model.Revision, r *model.Revision) bool {
	for _, x := range revs {
		if x == r {
			return true
		}
	}
	return false
}

// applyConflicts drops the losing candidate of every conflict. A conflict
// caused by a fragment's export detaches that fragment from the host. When
// neither side has a requirement to retry, the revision cannot resolve.
func (s *session) applyConflicts(conflicts []*conflict) {
	for _, cf := range conflicts {
		if cf.frag != nil {
			if s.detached[cf.rev] == nil {
				s.detached[cf.rev] = map[*model.Revision]bool{}
			}
			s.detached[cf.rev][cf.frag] = true
			s.log.Debug("fragment detached", "fragment", cf.frag, "host", cf.rev, "package", cf.pkg)
			continue
		}
		loser := s.loser(cf)
		if loser == nil {
			s.fail(cf.rev, "inconsistent use of package "+cf.pkg)
			continue
		}
		key := reqKey{cf.rev, loser.Requirement}
		if s.dropped[key] == nil {
			s.dropped[key] = map[candidate]bool{}
		}
		s.dropped[key][candidate{cap: loser.Capability, provider: loser.Provider}] = true
		s.invalidate(key)
		s.log.Debug("candidate dropped", "revision", cf.rev, "requirement", loser.Requirement, "capability", loser.Capability)
	}
}

// loser picks the wire to give up in a conflict. A fragment requirement
// gives way to a host requirement, a requirement with alternatives gives way
// to one without, and otherwise the lower-ranked capability loses.
func (s *session) loser(cf *conflict) *model.Wire {
	a, b := cf.a, cf.b
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return b
	case b == nil, a == b:
		return a
	}

	fa := a.Requirement.Revision().IsFragment()
	fb := b.Requirement.Revision().IsFragment()
	if fa != fb {
		if fa {
			return a
		}
		return b
	}

	alta := len(s.candidates(cf.rev, a.Requirement)) > 1
	altb := len(s.candidates(cf.rev, b.Requirement)) > 1
	if alta != altb {
		if alta {
			return a
		}
		return b
	}

	ca := candidate{cap: a.Capability, provider: a.Provider}
	cb := candidate{cap: b.Capability, provider: b.Provider}
	if s.rankCaps(ca, cb) > 0 {
		return a
	}
	return b
}

func sortedKeys(m map[string]source) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
