package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/filter"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/platform"
	"github.com/matzehuels/bundlewire/pkg/version"
)

// =============================================================================
// Fixtures
// =============================================================================

type testGraph struct {
	revs     []*model.Revision
	disabled map[*model.Revision]bool
	props    platform.Properties
	system   map[*model.Revision][]*model.Capability
}

func newGraph(t *testing.T, revs ...*model.Revision) *testGraph {
	t.Helper()
	g := &testGraph{disabled: map[*model.Revision]bool{}, system: map[*model.Revision][]*model.Capability{}}
	for _, r := range revs {
		g.add(t, r)
	}
	return g
}

func (g *testGraph) add(t *testing.T, r *model.Revision) {
	t.Helper()
	require.NoError(t, r.Claim(g))
	g.revs = append(g.revs, r)
}

func (g *testGraph) Revisions() []*model.Revision      { return g.revs }
func (g *testGraph) IsDisabled(r *model.Revision) bool { return g.disabled[r] }

func (g *testGraph) SystemCapabilities(r *model.Revision) []*model.Capability {
	if !g.props.IsSystemName(r.SymbolicName()) {
		return nil
	}
	if _, ok := g.system[r]; !ok {
		g.system[r] = g.props.SystemCapabilities(r)
	}
	return g.system[r]
}

func (g *testGraph) resolve(t *testing.T, ctx Context, req Request) *Result {
	t.Helper()
	ctx.Platform = g.props
	res, err := Resolve(ctx, g, req)
	require.NoError(t, err)
	g.apply(res)
	return res
}

func (g *testGraph) apply(res *Result) {
	for _, r := range res.Unresolved {
		r.SetWiring(nil)
	}
	for r, w := range res.Wirings {
		r.SetWiring(w)
	}
	for _, r := range g.revs {
		if w := r.Wiring(); w != nil {
			w.Provided = nil
		}
	}
	for _, r := range g.revs {
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

type opt func(*model.Declaration)

func bundle(id int64, name, ver string, opts ...opt) *model.Revision {
	d := model.Declaration{ID: id, SymbolicName: name, Version: version.MustParse(ver)}
	for _, o := range opts {
		o(&d)
	}
	return model.MustNewRevision(d)
}

func exports(pkg, ver string, uses ...string) opt {
	return func(d *model.Declaration) {
		d.Capabilities = append(d.Capabilities, &model.Capability{
			Namespace: model.Package, Name: pkg, Version: version.MustParse(ver), Uses: uses,
		})
	}
}

func imports(pkg, rng string) opt {
	return func(d *model.Declaration) {
		d.Requirements = append(d.Requirements, &model.Requirement{
			Namespace: model.Package, Name: pkg, Range: version.MustParseRange(rng),
		})
	}
}

func optionalImport(pkg string) opt {
	return func(d *model.Declaration) {
		d.Requirements = append(d.Requirements, &model.Requirement{
			Namespace: model.Package, Name: pkg, Resolution: model.Optional,
		})
	}
}

func dynamicImport(pattern string) opt {
	return func(d *model.Declaration) {
		d.Requirements = append(d.Requirements, &model.Requirement{
			Namespace: model.Package, Name: pattern, Resolution: model.Dynamic,
		})
	}
}

func requires(name, rng string) opt {
	return func(d *model.Declaration) {
		d.Requirements = append(d.Requirements, &model.Requirement{
			Namespace: model.Bundle, Name: name, Range: version.MustParseRange(rng),
		})
	}
}

func fragmentOf(host string) opt {
	return func(d *model.Declaration) {
		d.Host = &model.Requirement{Name: host}
	}
}

func singleton() opt {
	return func(d *model.Declaration) { d.Singleton = true }
}

func requireEE(f string) opt {
	return func(d *model.Declaration) {
		d.Requirements = append(d.Requirements, &model.Requirement{
			Namespace: model.ExecutionEnvironment, Filter: filter.MustParse(f),
		})
	}
}

func platformFilter(f string) opt {
	return func(d *model.Declaration) { d.PlatformFilter = filter.MustParse(f) }
}

func wireFor(t *testing.T, r *model.Revision, ns model.Namespace, name string) *model.Wire {
	t.Helper()
	require.NotNil(t, r.Wiring(), "%s is not resolved", r)
	for _, w := range r.Wiring().RequiredWires(ns) {
		if w.Requirement.Name == name || w.Capability.Name == name {
			return w
		}
	}
	t.Fatalf("%s has no %s wire for %s", r, ns, name)
	return nil
}

// =============================================================================
// Basic Wiring
// =============================================================================

func TestResolveImport(t *testing.T) {
	b := bundle(1, "b", "1.0", exports("org.b", "1.0"))
	a := bundle(2, "a", "1.0", imports("org.b", "[1.0,2.0)"))
	g := newGraph(t, b, a)

	res := g.resolve(t, Context{}, Request{})

	require.True(t, a.IsResolved())
	require.True(t, b.IsResolved())
	require.Empty(t, res.Unresolved)
	require.Equal(t, b, wireFor(t, a, model.Package, "org.b").Provider)
	require.Len(t, b.Wiring().ProvidedWires(model.Package), 1)
	require.Equal(t, 1, res.Iterations)
}

func TestResolveMissingProviderIsLocal(t *testing.T) {
	a := bundle(1, "a", "1.0", imports("org.missing", ""))
	b := bundle(2, "b", "1.0", imports("org.a", ""))
	c := bundle(3, "c", "1.0", exports("org.c", "1.0"))
	a2 := bundle(4, "a2", "1.0", exports("org.a", "1.0"), imports("org.missing", ""))
	g := newGraph(t, a, b, c, a2)

	g.resolve(t, Context{}, Request{})

	require.False(t, a.IsResolved())
	require.False(t, a2.IsResolved())
	require.False(t, b.IsResolved(), "b depends on an unresolvable exporter")
	require.True(t, c.IsResolved())
}

func TestResolveOptional(t *testing.T) {
	a := bundle(1, "a", "1.0", optionalImport("org.missing"))
	g := newGraph(t, a)

	g.resolve(t, Context{}, Request{})

	require.True(t, a.IsResolved())
	require.Empty(t, a.Wiring().Required)
}

func TestResolvePrefersHigherVersion(t *testing.T) {
	x1 := bundle(1, "x1", "1.0", exports("org.x", "1.0"))
	x2 := bundle(2, "x2", "1.0", exports("org.x", "2.0"))
	a := bundle(3, "a", "1.0", imports("org.x", ""))
	b := bundle(4, "b", "1.0", imports("org.x", "[1.0,2.0)"))
	g := newGraph(t, x1, x2, a, b)

	g.resolve(t, Context{}, Request{})

	require.Equal(t, x2, wireFor(t, a, model.Package, "org.x").Provider)
	require.Equal(t, x1, wireFor(t, b, model.Package, "org.x").Provider)
}

func TestResolveComparatorOrder(t *testing.T) {
	x1 := bundle(1, "x1", "1.0", exports("org.x", "1.0"))
	x2 := bundle(2, "x2", "1.0", exports("org.x", "2.0"))
	a := bundle(3, "a", "1.0", imports("org.x", ""))
	g := newGraph(t, x1, x2, a)

	lowest := ComparatorFunc(func(a, b *model.Capability) int { return a.Version.Compare(b.Version) })
	g.resolve(t, Context{Comparator: lowest}, Request{})

	require.Equal(t, x1, wireFor(t, a, model.Package, "org.x").Provider)
}

func TestResolveBundleCycle(t *testing.T) {
	a := bundle(1, "a", "1.0", requires("b", ""))
	b := bundle(2, "b", "1.0", requires("a", ""))
	g := newGraph(t, a, b)

	g.resolve(t, Context{}, Request{})

	require.True(t, a.IsResolved())
	require.True(t, b.IsResolved())
	require.Equal(t, b, wireFor(t, a, model.Bundle, "b").Provider)
	require.Equal(t, a, wireFor(t, b, model.Bundle, "a").Provider)
}

func TestResolveSubsetOnly(t *testing.T) {
	a := bundle(1, "a", "1.0", imports("org.b", ""))
	b := bundle(2, "b", "1.0", exports("org.b", "1.0"))
	c := bundle(3, "c", "1.0")
	g := newGraph(t, a, b, c)

	g.resolve(t, Context{}, Request{Subset: []*model.Revision{a}})

	require.True(t, a.IsResolved())
	require.True(t, b.IsResolved(), "providers are pulled into the closure")
	require.False(t, c.IsResolved())
}

func TestResolveDisabled(t *testing.T) {
	b := bundle(1, "b", "1.0", exports("org.b", "1.0"))
	a := bundle(2, "a", "1.0", imports("org.b", ""))
	g := newGraph(t, b, a)
	g.disabled[b] = true

	g.resolve(t, Context{}, Request{})

	require.False(t, b.IsResolved())
	require.False(t, a.IsResolved())
}

func TestRefreshKeepsPreviousProvider(t *testing.T) {
	x1 := bundle(1, "x1", "1.0", exports("org.x", "1.0"))
	a := bundle(2, "a", "1.0", imports("org.x", ""))
	g := newGraph(t, x1, a)
	g.resolve(t, Context{}, Request{})

	x2 := bundle(3, "x2", "1.0", exports("org.x", "2.0"))
	g.add(t, x2)
	g.resolve(t, Context{}, Request{Subset: []*model.Revision{a}})

	require.True(t, x2.IsResolved())
	require.Equal(t, x1, wireFor(t, a, model.Package, "org.x").Provider)
}

// =============================================================================
// Platform
// =============================================================================

func TestResolveExecutionEnvironment(t *testing.T) {
	a := bundle(1, "a", "1.0", requireEE("(&(osgi.ee=JavaSE)(version>=1.8))"))
	g := newGraph(t, a)
	g.props = platform.Properties{{platform.KeyExecutionEnvironments: "JavaSE-1.7"}}

	g.resolve(t, Context{}, Request{})
	require.False(t, a.IsResolved())

	g.props = platform.Properties{{platform.KeyExecutionEnvironments: "JavaSE-1.7,JavaSE-11"}}
	g.resolve(t, Context{}, Request{})
	require.True(t, a.IsResolved())
	require.Empty(t, a.Wiring().Required, "platform requirements produce no wires")
}

func TestResolvePlatformFilter(t *testing.T) {
	a := bundle(1, "a", "1.0", platformFilter("(osgi.os=linux)"))
	b := bundle(2, "b", "1.0", platformFilter("(osgi.os=win32)"))
	g := newGraph(t, a, b)
	g.props = platform.Properties{{platform.KeyOS: "linux"}}

	g.resolve(t, Context{}, Request{})

	require.True(t, a.IsResolved())
	require.False(t, b.IsResolved())
}

func TestResolveSystemPackages(t *testing.T) {
	sys := bundle(0, "org.eclipse.osgi", "3.18")
	a := bundle(1, "a", "1.0", imports("javax.net", "[1.0,2.0)"), requires("system.bundle", ""))
	g := newGraph(t, sys, a)
	g.props = platform.Properties{{
		platform.KeySystemPackages: "javax.net;version=1.0,org.w3c.dom",
		platform.KeySystemAliases:  "org.eclipse.osgi",
	}}

	g.resolve(t, Context{}, Request{})

	require.True(t, a.IsResolved())
	require.Equal(t, sys, wireFor(t, a, model.Package, "javax.net").Provider)
	require.Equal(t, sys, wireFor(t, a, model.Bundle, "system.bundle").Provider)
	require.Len(t, sys.Wiring().CapabilitiesOf(model.Package), 2)
}

// =============================================================================
// Singletons
// =============================================================================

func TestSingletonArbitration(t *testing.T) {
	a1 := bundle(1, "a", "1.0", singleton())
	a2 := bundle(2, "a", "2.0", singleton())
	b := bundle(3, "b", "1.0", requires("a", "[2.0,2.0]"))
	c := bundle(4, "c", "1.0", requires("a", "[1.0,2.0)"))
	g := newGraph(t, a1, a2, b, c)

	g.resolve(t, Context{}, Request{})

	require.True(t, a2.IsResolved())
	require.False(t, a1.IsResolved())
	require.True(t, b.IsResolved())
	require.False(t, c.IsResolved())
}

func TestNonSingletonDuplicatesResolve(t *testing.T) {
	a1 := bundle(1, "a", "1.0")
	a2 := bundle(2, "a", "2.0")
	b := bundle(3, "b", "1.0", requires("a", "[2.0,2.0]"))
	c := bundle(4, "c", "1.0", requires("a", "[1.0,2.0)"))
	g := newGraph(t, a1, a2, b, c)

	g.resolve(t, Context{}, Request{})

	require.Equal(t, a2, wireFor(t, b, model.Bundle, "a").Provider)
	require.Equal(t, a1, wireFor(t, c, model.Bundle, "a").Provider)
}

func TestSingletonKeepsResolved(t *testing.T) {
	a1 := bundle(1, "a", "1.0", singleton())
	g := newGraph(t, a1)
	g.resolve(t, Context{}, Request{})

	a2 := bundle(2, "a", "2.0", singleton())
	g.add(t, a2)
	g.resolve(t, Context{}, Request{AllowUnresolve: true})

	require.True(t, a1.IsResolved(), "default policy prefers the resolved singleton")
	require.False(t, a2.IsResolved())
}

func TestSingletonComparatorDisplaces(t *testing.T) {
	a1 := bundle(1, "a", "1.0", singleton())
	user := bundle(2, "user", "1.0", requires("a", ""))
	g := newGraph(t, a1, user)
	g.resolve(t, Context{}, Request{})

	a2 := bundle(3, "a", "2.0", singleton())
	g.add(t, a2)
	highest := ComparatorFunc(func(a, b *model.Capability) int { return b.Version.Compare(a.Version) })

	g.resolve(t, Context{Comparator: highest}, Request{})
	require.True(t, a1.IsResolved(), "resolved singletons stay without AllowUnresolve")
	require.False(t, a2.IsResolved())

	res := g.resolve(t, Context{Comparator: highest}, Request{AllowUnresolve: true})
	require.True(t, a2.IsResolved())
	require.False(t, a1.IsResolved())
	require.Contains(t, res.Unresolved, a1)
	require.Equal(t, a2, wireFor(t, user, model.Bundle, "a").Provider)
}

// =============================================================================
// Uses
// =============================================================================

func usesGraph(t *testing.T) (g *testGraph, x1, x2, p, a *model.Revision) {
	x1 = bundle(1, "x1", "1.0", exports("org.x", "1.0"))
	x2 = bundle(2, "x2", "1.0", exports("org.x", "2.0"))
	p = bundle(3, "p", "1.0", exports("org.p", "1.0", "org.x"), imports("org.x", "[1.0,2.0)"))
	a = bundle(4, "a", "1.0", imports("org.x", ""), imports("org.p", ""))
	return newGraph(t, x1, x2, p, a), x1, x2, p, a
}

func TestUsesConflictBacktracks(t *testing.T) {
	g, x1, _, p, a := usesGraph(t)

	res := g.resolve(t, Context{}, Request{})

	require.True(t, a.IsResolved())
	require.Equal(t, x1, wireFor(t, p, model.Package, "org.x").Provider)
	require.Equal(t, x1, wireFor(t, a, model.Package, "org.x").Provider, "a must see the same org.x as p")
	require.Equal(t, 2, res.Iterations)
}

func TestUsesUnresolvableConflict(t *testing.T) {
	x1 := bundle(1, "x1", "1.0", exports("org.x", "1.0"))
	x2 := bundle(2, "x2", "1.0", exports("org.x", "2.0"))
	p := bundle(3, "p", "1.0", exports("org.p", "1.0", "org.x"), imports("org.x", "[1.0,2.0)"))
	a := bundle(4, "a", "1.0", imports("org.x", "[2.0,3.0)"), imports("org.p", ""))
	g := newGraph(t, x1, x2, p, a)

	g.resolve(t, Context{}, Request{})

	require.True(t, p.IsResolved())
	require.False(t, a.IsResolved())
}

func TestDevModeSkipsUses(t *testing.T) {
	g, _, x2, _, a := usesGraph(t)

	g.resolve(t, Context{DevMode: true}, Request{})

	require.Equal(t, x2, wireFor(t, a, model.Package, "org.x").Provider)
}

func TestIterationLimit(t *testing.T) {
	g, _, _, _, _ := usesGraph(t)

	_, err := Resolve(Context{MaxIterations: 1}, g, Request{})

	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrCodeIterationLimit))
	require.True(t, errors.Fatal(err))
}

// =============================================================================
// Fragments
// =============================================================================

func TestFragmentIsolation(t *testing.T) {
	h := bundle(1, "h", "1.0", exports("org.h", "1.0"))
	f := bundle(2, "f", "1.0", fragmentOf("h"), imports("org.x", ""), exports("org.f", "1.0"))
	ok := bundle(3, "ok", "1.0", fragmentOf("h"), exports("org.ok", "1.0"))
	g := newGraph(t, h, f, ok)

	g.resolve(t, Context{}, Request{})

	require.True(t, h.IsResolved())
	require.False(t, f.IsResolved())
	require.True(t, ok.IsResolved())
	require.Equal(t, []*model.Revision{ok}, h.Wiring().Fragments)

	x := bundle(4, "x", "1.0", exports("org.x", "1.0"))
	g.add(t, x)
	g.resolve(t, Context{}, Request{})

	require.True(t, f.IsResolved())
	require.Equal(t, []*model.Revision{ok, f}, h.Wiring().Fragments, "attached fragments keep their place")
	require.Equal(t, []*model.Revision{h}, f.Wiring().Hosts())

	caps := h.Wiring().CapabilitiesOf(model.Package)
	require.Len(t, caps, 3)
	require.Equal(t, "org.h", caps[0].Name)
	require.Equal(t, "org.ok", caps[1].Name)
	require.Equal(t, "org.f", caps[2].Name)
	require.Equal(t, x, wireFor(t, h, model.Package, "org.x").Provider)
}

func TestFragmentCapabilitiesProvidedByHost(t *testing.T) {
	h := bundle(1, "h", "1.0")
	f := bundle(2, "f", "1.0", fragmentOf("h"), exports("org.f", "1.0"))
	c := bundle(3, "c", "1.0", imports("org.f", ""))
	g := newGraph(t, h, f, c)

	g.resolve(t, Context{}, Request{Subset: []*model.Revision{c}})

	require.True(t, c.IsResolved())
	require.Equal(t, h, wireFor(t, c, model.Package, "org.f").Provider)
}

func TestFragmentWithoutHost(t *testing.T) {
	f := bundle(1, "f", "1.0", fragmentOf("missing"))
	g := newGraph(t, f)

	g.resolve(t, Context{}, Request{})

	require.False(t, f.IsResolved())
}

func overlapGraph(t *testing.T) (g *testGraph, h, f *model.Revision) {
	x1 := bundle(1, "x1", "1.0", exports("org.x", "1.0"))
	x2 := bundle(2, "x2", "1.0", exports("org.x", "2.0"))
	h = bundle(3, "h", "1.0", imports("org.x", "[1.0,2.0)"))
	f = bundle(4, "f", "1.0", fragmentOf("h"), imports("org.x", "[2.0,3.0)"))
	return newGraph(t, x1, x2, h, f), h, f
}

func TestFragmentOverlappingImport(t *testing.T) {
	g, h, f := overlapGraph(t)
	g.resolve(t, Context{}, Request{})
	require.True(t, h.IsResolved())
	require.False(t, f.IsResolved(), "fragment import cannot agree with the host's")

	g, h, f = overlapGraph(t)
	g.resolve(t, Context{DevMode: true}, Request{})
	require.True(t, h.IsResolved())
	require.True(t, f.IsResolved(), "development mode skips the overlap check")
}

func TestFailedAttachRefreshKeepsHost(t *testing.T) {
	h := bundle(1, "h", "1.0")
	g := newGraph(t, h)
	g.resolve(t, Context{}, Request{})
	before := h.Wiring()

	f := bundle(2, "f", "1.0", fragmentOf("h"), imports("org.missing", ""))
	g.add(t, f)
	res := g.resolve(t, Context{}, Request{})

	require.NotContains(t, res.Unresolved, h)
	require.Same(t, before, h.Wiring())
	require.False(t, f.IsResolved())
}

func TestFragmentExportUsesConflictDetaches(t *testing.T) {
	x := bundle(1, "x", "1.0", exports("org.api", "1.0", "org.spi"), exports("org.spi", "1.0"))
	h := bundle(2, "h", "1.0", imports("org.api", ""))
	f := bundle(3, "f", "1.0", fragmentOf("h"), exports("org.spi", "2.0"))
	g := newGraph(t, x, h, f)

	res := g.resolve(t, Context{}, Request{})

	require.True(t, h.IsResolved(), "the host keeps its import")
	require.Equal(t, x, wireFor(t, h, model.Package, "org.api").Provider)
	require.Empty(t, h.Wiring().Fragments)
	require.False(t, f.IsResolved())
	require.Contains(t, res.Attempted, f)
}

func TestReopenedHostKeepsDependentsConsistent(t *testing.T) {
	y := bundle(1, "y", "1.0", exports("org.u", "1.0"))
	z := bundle(2, "z", "1.0", exports("org.u", "2.0"))
	h := bundle(3, "h", "1.0", exports("org.q", "1.0", "org.u"))
	d := bundle(4, "d", "1.0", imports("org.q", ""), imports("org.u", ""))
	g := newGraph(t, y, z, h, d)
	g.resolve(t, Context{}, Request{})
	require.Equal(t, z, wireFor(t, d, model.Package, "org.u").Provider)
	before := h.Wiring()

	f := bundle(5, "f", "1.0", fragmentOf("h"), imports("org.u", "[1.0,2.0)"))
	g.add(t, f)
	res := g.resolve(t, Context{}, Request{})

	require.False(t, f.IsResolved(), "attaching f would show d a second org.u")
	require.Same(t, before, h.Wiring())
	require.NotContains(t, res.Unresolved, h)
	require.Equal(t, z, wireFor(t, d, model.Package, "org.u").Provider)
}

// =============================================================================
// Dynamic Imports
// =============================================================================

func TestLinkDynamicImport(t *testing.T) {
	x := bundle(1, "x", "1.0", exports("org.example.api", "1.0"))
	a := bundle(2, "a", "1.0", dynamicImport("org.example.*"))
	g := newGraph(t, x, a)
	g.resolve(t, Context{}, Request{})

	wire, err := LinkDynamicImport(Context{}, g, a, "org.example.api")
	require.NoError(t, err)
	require.NotNil(t, wire)
	require.Equal(t, x, wire.Provider)
	require.Equal(t, a, wire.Requirer)

	wire, err = LinkDynamicImport(Context{}, g, a, "org.other")
	require.NoError(t, err)
	require.Nil(t, wire)

	_, err = LinkDynamicImport(Context{}, g, a, "not a package")
	require.Error(t, err)
}

func TestLinkDynamicImportUnresolved(t *testing.T) {
	a := bundle(1, "a", "1.0", dynamicImport("*"), imports("org.missing", ""))
	g := newGraph(t, a)
	g.resolve(t, Context{}, Request{})

	wire, err := LinkDynamicImport(Context{}, g, a, "org.any")
	require.NoError(t, err)
	require.Nil(t, wire)
}
