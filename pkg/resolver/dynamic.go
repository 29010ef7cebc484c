package resolver

import (
	"sort"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/model"
)

// dynamicView is the committed graph with one extra wire on rev.
type dynamicView struct {
	rev   *model.Revision
	extra *model.Wire
}

func (v dynamicView) wires(r *model.Revision) []*model.Wire {
	w := r.Wiring()
	if w == nil {
		return nil
	}
	if r != v.rev {
		return w.Required
	}
	return append(append([]*model.Wire(nil), w.Required...), v.extra)
}

func (v dynamicView) caps(r *model.Revision) []*model.Capability {
	if w := r.Wiring(); w != nil {
		return w.Capabilities
	}
	return nil
}

// LinkDynamicImport finds a wire for package pkg through one of rev's
// dynamic requirements, or returns nil when there is none. Only resolved
// exporters are considered, in candidate order, and a candidate that would
// make rev's package space inconsistent is skipped. The wire is not applied;
// the caller commits it.
func LinkDynamicImport(ctx Context, g Graph, rev *model.Revision, pkg string) (*model.Wire, error) {
	ctx = ctx.WithDefaults()
	if err := errors.ValidatePackageName(pkg); err != nil {
		return nil, err
	}
	w := rev.Wiring()
	if w == nil || rev.Lifecycle() != model.Owned {
		return nil, nil
	}
	for _, wire := range w.RequiredWires(model.Package) {
		if wire.Capability.Name == pkg {
			return nil, nil
		}
	}
	for _, c := range w.CapabilitiesOf(model.Package) {
		if c.Name == pkg {
			return nil, nil
		}
	}

	var dynamic []*model.Requirement
	for _, req := range w.Requirements {
		if req.IsDynamic() && req.Namespace == model.Package && req.MatchesPackageName(pkg) {
			dynamic = append(dynamic, req)
		}
	}
	if len(dynamic) == 0 {
		return nil, nil
	}

	revs := g.Revisions()
	order := make(map[*model.Revision]int, len(revs))
	var providers []candidate
	for i, p := range revs {
		order[p] = i
		pw := p.Wiring()
		if pw == nil || p.Lifecycle() != model.Owned || p.IsFragment() || g.IsDisabled(p) {
			continue
		}
		for _, c := range pw.CapabilitiesOf(model.Package) {
			if c.Name == pkg {
				providers = append(providers, candidate{cap: c, provider: p})
			}
		}
	}

	checker := checker{}
	for _, req := range dynamic {
		var cs []candidate
		for _, c := range providers {
			if req.Matches(c.cap) {
				cs = append(cs, c)
			}
		}
		sort.SliceStable(cs, func(i, j int) bool {
			a, b := cs[i], cs[j]
			if ctx.Comparator != nil {
				if c := ctx.Comparator.Compare(a.cap, b.cap); c != 0 {
					return c < 0
				}
			} else if c := a.cap.Version.Compare(b.cap.Version); c != 0 {
				return c > 0
			}
			if order[a.provider] != order[b.provider] {
				return order[a.provider] < order[b.provider]
			}
			return a.cap.Index() < b.cap.Index()
		})

		for _, c := range cs {
			wire := &model.Wire{Requirer: rev, Requirement: req, Provider: c.provider, Capability: c.cap}
			if !ctx.DevMode {
				checker.v = dynamicView{rev: rev, extra: wire}
				if cf := checker.check(rev); cf != nil {
					ctx.Logger.Debug("dynamic candidate rejected", "revision", rev, "package", pkg, "provider", c.provider, "conflict", cf.pkg)
					continue
				}
			}
			ctx.Logger.Debug("dynamic import linked", "revision", rev, "package", pkg, "provider", c.provider)
			return wire, nil
		}
	}
	return nil, nil
}
