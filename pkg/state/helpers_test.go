package state

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/bundlewire/pkg/delta"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/version"
)

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
	return func(d *model.Declaration) { d.Host = &model.Requirement{Name: host} }
}

func singleton() opt {
	return func(d *model.Declaration) { d.Singleton = true }
}

func newState(t *testing.T, revs ...*model.Revision) *State {
	t.Helper()
	s := New(Options{Logger: log.New(io.Discard)})
	for _, r := range revs {
		ok, err := s.AddRevision(r)
		require.NoError(t, err)
		require.True(t, ok)
	}
	return s
}

func resolve(t *testing.T, s *State, subset []*model.Revision, allowUnresolve bool) delta.StateDelta {
	t.Helper()
	d, err := s.Resolve(context.Background(), subset, allowUnresolve)
	require.NoError(t, err)
	return d
}

func providerOf(t *testing.T, r *model.Revision, name string) *model.Revision {
	t.Helper()
	require.NotNil(t, r.Wiring(), "%s is not resolved", r)
	for _, w := range r.Wiring().Required {
		if w.Requirement.Name == name || w.Capability.Name == name {
			return w.Provider
		}
	}
	t.Fatalf("%s has no wire for %s", r, name)
	return nil
}
