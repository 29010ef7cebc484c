package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/bundlewire/pkg/delta"
	"github.com/matzehuels/bundlewire/pkg/model"
)

func TestScenarioMutualImports(t *testing.T) {
	b1 := bundle(1, "b1", "1.0", exports("p1", "1.0"), imports("p2", ""))
	b2 := bundle(2, "b2", "1.0", exports("p2", "1.0"), imports("p1", ""))
	b3 := bundle(3, "b3", "1.0", imports("p1", "2.0"))
	s := newState(t, b1, b2, b3)

	d := resolve(t, s, nil, false)

	require.True(t, b1.IsResolved())
	require.True(t, b2.IsResolved())
	require.False(t, b3.IsResolved())
	require.Nil(t, b3.Wiring())
	require.Equal(t, b2, providerOf(t, b1, "p2"))
	require.Equal(t, b1, providerOf(t, b2, "p1"))

	require.Equal(t, delta.Added|delta.Resolved, d.Flags(b1))
	require.Equal(t, delta.Added|delta.Resolved, d.Flags(b2))
	require.Equal(t, delta.Added, d.Flags(b3))
}

func TestScenarioSingletonVersions(t *testing.T) {
	for _, single := range []bool{false, true} {
		t.Run(fmt.Sprintf("singleton=%v", single), func(t *testing.T) {
			var opts []opt
			if single {
				opts = append(opts, singleton())
			}
			a1 := bundle(1, "A", "1.0", opts...)
			a2 := bundle(2, "A", "2.0", opts...)
			b := bundle(3, "B", "1.0", requires("A", "[2.0,2.0]"))
			c := bundle(4, "C", "1.0", requires("A", "[1.0,2.0)"))
			s := newState(t, a1, a2, b, c)

			resolve(t, s, nil, false)

			require.True(t, a2.IsResolved())
			require.True(t, b.IsResolved())
			require.Equal(t, a2, providerOf(t, b, "A"))
			if single {
				require.False(t, a1.IsResolved())
				require.False(t, c.IsResolved())
				return
			}
			require.True(t, a1.IsResolved())
			require.Equal(t, a1, providerOf(t, c, "A"))
		})
	}
}

func TestScenarioFragmentAttachesLater(t *testing.T) {
	h := bundle(1, "H", "1.0", exports("h.api", "1.0"))
	f := bundle(2, "F", "1.0", fragmentOf("H"), imports("x", ""), exports("f.api", "1.0"))
	s := newState(t, h, f)

	d := resolve(t, s, nil, false)
	require.True(t, h.IsResolved())
	require.False(t, f.IsResolved())
	require.Equal(t, delta.Added, d.Flags(f))

	x := bundle(3, "X", "1.0", exports("x", "1.0"))
	_, err := s.AddRevision(x)
	require.NoError(t, err)
	d = resolve(t, s, nil, false)

	require.True(t, f.IsResolved())
	require.True(t, x.IsResolved())
	require.Equal(t, delta.Resolved, d.Flags(f))
	require.Equal(t, delta.LinkageChanged, d.Flags(h))

	caps := h.Wiring().Capabilities
	own := len(h.Capabilities())
	require.Equal(t, h.Capabilities(), caps[:own], "host capabilities come first")
	require.Equal(t, f.DeclaredCapabilities(), caps[own:])
}

func TestResolveIsIdempotent(t *testing.T) {
	b1 := bundle(1, "b1", "1.0", exports("p1", "1.0"), imports("p2", ""))
	b2 := bundle(2, "b2", "1.0", exports("p2", "1.0"), imports("p1", ""))
	b3 := bundle(3, "b3", "1.0", imports("p1", "2.0"))
	h := bundle(4, "h", "1.0")
	f := bundle(5, "f", "1.0", fragmentOf("h"))
	s := newState(t, b1, b2, b3, h, f)

	first := resolve(t, s, nil, false)
	require.False(t, first.IsEmpty())

	require.True(t, resolve(t, s, nil, false).IsEmpty())
	require.True(t, resolve(t, s, nil, true).IsEmpty())
	require.True(t, s.Changes().IsEmpty())
}

func TestSingletonUniquenessAnyOrder(t *testing.T) {
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			revs := []*model.Revision{
				bundle(1, "s", "1.0", singleton()),
				bundle(2, "s", "2.0", singleton()),
				bundle(3, "s", "3.0", singleton()),
			}
			s := newState(t)
			for _, i := range order {
				_, err := s.AddRevision(revs[i])
				require.NoError(t, err)
				resolve(t, s, nil, false)
			}
			resolve(t, s, nil, true)

			resolved := 0
			for _, r := range revs {
				if r.IsResolved() {
					resolved++
				}
			}
			require.Equal(t, 1, resolved)
			require.True(t, revs[order[0]].IsResolved(), "the first resolved singleton is kept")
		})
	}
}

func TestCycleResolvesTogether(t *testing.T) {
	a := bundle(1, "A", "1.0", requires("B", ""), requires("C", ""))
	b := bundle(2, "B", "1.0", requires("A", ""), requires("C", ""))
	c := bundle(3, "C", "1.0")
	s := newState(t, a, b, c)

	resolve(t, s, nil, false)

	require.Len(t, s.ResolvedRevisions(), 3)
	require.Equal(t, b, providerOf(t, a, "B"))
	require.Equal(t, a, providerOf(t, b, "A"))
}

func TestFragmentExportConflictDetachesFragment(t *testing.T) {
	x := bundle(1, "X", "1.0", exports("p0", "1.0", "p1"), exports("p1", "1.0"))
	h := bundle(2, "H", "1.0", imports("p0", ""))
	f := bundle(3, "F", "1.0", fragmentOf("H"), exports("p1", "2.0"))
	s := newState(t, x, h, f)

	d := resolve(t, s, nil, false)

	require.True(t, h.IsResolved(), "the host keeps its import")
	require.Equal(t, x, providerOf(t, h, "p0"))
	require.Empty(t, h.Wiring().Fragments)
	require.False(t, f.IsResolved())
	require.Equal(t, delta.Added|delta.Resolved, d.Flags(h))
	require.Equal(t, delta.Added, d.Flags(f))

	require.True(t, resolve(t, s, nil, false).IsEmpty())
	require.True(t, resolve(t, s, nil, true).IsEmpty())
}

func TestRepeatedResolveIsNoOpAfterConflicts(t *testing.T) {
	tests := []struct {
		name string
		revs func() []*model.Revision
	}{
		{
			name: "fragment of contested singleton",
			revs: func() []*model.Revision {
				return []*model.Revision{
					bundle(1, "D", "1.0", fragmentOf("A")),
					bundle(2, "A", "3.0", singleton(), imports("p0", ""), requires("C", "")),
					bundle(3, "A", "2.0"),
					bundle(4, "C", "3.0"),
				}
			},
		},
		{
			name: "uses through required bundles",
			revs: func() []*model.Revision {
				return []*model.Revision{
					bundle(1, "A", "3.0", singleton()),
					bundle(2, "D", "1.0", exports("p0", "1.0"), exports("p1", "1.0", "p3"), requires("B", "")),
					bundle(3, "B", "1.0", exports("p4", "1.0", "p0"), requires("A", "")),
					bundle(4, "A", "2.0"),
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState(t, tt.revs()...)

			require.False(t, resolve(t, s, nil, false).IsEmpty())
			resolved := s.ResolvedRevisions()

			require.True(t, resolve(t, s, nil, false).IsEmpty(), "second pass changed the state")
			require.Equal(t, resolved, s.ResolvedRevisions())

			singletons := 0
			for _, r := range resolved {
				if r.SymbolicName() == "A" && r.IsSingleton() {
					singletons++
				}
			}
			require.LessOrEqual(t, singletons, 1)
		})
	}
}
