package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/bundlewire/pkg/cache"
	bwerrors "github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/platform"
	"github.com/matzehuels/bundlewire/pkg/state"
	"github.com/matzehuels/bundlewire/pkg/version"
)

// =============================================================================
// Fixtures
// =============================================================================

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
			Attributes: map[string]any{"vendor": "acme", "tags": []string{"a", "b"}},
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

func requires(name, rng string) opt {
	return func(d *model.Declaration) {
		d.Requirements = append(d.Requirements, &model.Requirement{
			Namespace: model.Bundle, Name: name, Range: version.MustParseRange(rng), Visibility: model.Reexport,
		})
	}
}

func fragmentOf(host string) opt {
	return func(d *model.Declaration) { d.Host = &model.Requirement{Name: host} }
}

func options() state.Options {
	return state.Options{Logger: log.New(io.Discard)}
}

// sample builds a resolved state exercising every persisted feature: system
// packages, a fragment, bundle requirements, an unresolved revision, a
// removal-pending revision and a disabled revision.
func sample(t *testing.T) *state.State {
	t.Helper()
	ctx := context.Background()
	st := state.New(state.Options{
		Logger: log.New(io.Discard),
		Platform: platform.Properties{{
			platform.KeySystemPackages:        "javax.net;version=1.0",
			platform.KeyExecutionEnvironments: "JavaSE-17",
			"build":                           int64(42),
			"callback":                        func() {},
		}},
	})

	revs := []*model.Revision{
		bundle(0, platform.SystemBundleName, "1.0"),
		bundle(1, "api", "1.2.3.final", exports("org.api", "1.0", "org.util")),
		bundle(2, "util", "2.0", exports("org.util", "2.0")),
		bundle(3, "app", "1.0", imports("org.api", "[1.0,2.0)"), imports("javax.net", ""), requires("util", "")),
		bundle(4, "app.nl", "1.0", fragmentOf("app"), exports("org.app.nl", "1.0")),
		bundle(5, "broken", "1.0", imports("org.missing", "")),
		bundle(6, "off", "1.0"),
	}
	for _, r := range revs {
		_, err := st.AddRevision(r)
		require.NoError(t, err)
	}
	require.NoError(t, st.AddDisabledInfo(model.DisabledInfo{Policy: "admin", Message: "blocked", Revision: revs[6]}))
	_, err := st.Resolve(ctx, nil, false)
	require.NoError(t, err)
	require.True(t, revs[3].IsResolved())
	require.True(t, revs[4].IsResolved())

	_, err = st.RemoveRevision(revs[2])
	require.NoError(t, err)
	_, err = st.Resolve(ctx, nil, false)
	require.NoError(t, err)
	require.Len(t, st.RemovalPending(), 1)
	return st
}

func encode(t *testing.T, st *state.State) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(context.Background(), st, &buf))
	return buf.Bytes()
}

func read(t *testing.T, data []byte) *state.State {
	t.Helper()
	st, err := Read(context.Background(), bytes.NewReader(data), options())
	require.NoError(t, err)
	return st
}

// requireSameGraph checks that two States hold equivalent revisions and
// wirings while sharing no instances.
func requireSameGraph(t *testing.T, want, got *state.State) {
	t.Helper()
	require.Equal(t, want.ID(), got.ID())
	require.Equal(t, want.Timestamp(), got.Timestamp())
	require.True(t, got.Compare(want).IsEmpty(), "delta: %s", got.Compare(want))

	wantAll, gotAll := want.All(), got.All()
	require.Len(t, gotAll, len(wantAll))
	for i, w := range wantAll {
		g := gotAll[i]
		require.NotSame(t, w, g)
		require.Equal(t, w.Fingerprint(), g.Fingerprint())
		require.Equal(t, w.Lifecycle(), g.Lifecycle())
		require.Equal(t, w.IsResolved(), g.IsResolved(), "%s", w)
		if !w.IsResolved() {
			continue
		}
		ww, gw := w.Wiring(), g.Wiring()
		require.Equal(t, ww.Fingerprint(), gw.Fingerprint(), "%s", w)
		require.Len(t, gw.Capabilities, len(ww.Capabilities))
		require.Len(t, gw.Provided, len(ww.Provided))
		for j, wire := range gw.Required {
			require.NoError(t, wire.Provider.CheckOwner(got))
			require.Same(t, wire.Provider, gotAll[indexOf(wantAll, ww.Required[j].Provider)])
		}
	}
}

func indexOf(revs []*model.Revision, r *model.Revision) int {
	for i, x := range revs {
		if x == r {
			return i
		}
	}
	return -1
}

// =============================================================================
// Round Trip
// =============================================================================

func TestRoundTrip(t *testing.T) {
	st := sample(t)
	got := read(t, encode(t, st))
	require.NotNil(t, got)
	requireSameGraph(t, st, got)
	require.True(t, got.Changes().IsEmpty())

	d, err := got.Resolve(context.Background(), nil, false)
	require.NoError(t, err)
	require.True(t, d.IsEmpty(), "resolving a restored state changes nothing: %s", d)
}

func TestRoundTripSystemPackages(t *testing.T) {
	got := read(t, encode(t, sample(t)))
	app, ok := got.Revision(3)
	require.True(t, ok)

	var sys *model.Capability
	for _, w := range app.Wiring().Required {
		if w.Capability.Name == "javax.net" {
			sys = w.Capability
		}
	}
	require.NotNil(t, sys)
	system, _ := got.Revision(0)
	require.Same(t, system, sys.Revision())
	require.Contains(t, got.SystemCapabilities(system), sys)
}

func TestRoundTripDropsUnserializablePlatform(t *testing.T) {
	got := read(t, encode(t, sample(t)))
	props := got.Platform()
	require.Len(t, props, 1)
	require.NotContains(t, props[0], "callback")
	require.Equal(t, int64(42), props[0]["build"])
	require.Equal(t, "JavaSE-17", props[0][platform.KeyExecutionEnvironments])
}

func TestRoundTripEmptyState(t *testing.T) {
	st := state.New(options())
	got := read(t, encode(t, st))
	require.NotNil(t, got)
	require.Empty(t, got.All())
	require.Equal(t, st.ID(), got.ID())
}

func TestEncodeIsDeterministic(t *testing.T) {
	st := sample(t)
	require.Equal(t, encode(t, st), encode(t, st))
}

func TestDisabledInfoMapsToNewInstance(t *testing.T) {
	st := state.New(options())
	revs := []*model.Revision{bundle(1, "a", "1.0"), bundle(2, "b", "1.0"), bundle(3, "c", "1.0")}
	for _, r := range revs {
		_, err := st.AddRevision(r)
		require.NoError(t, err)
	}
	require.NoError(t, st.AddDisabledInfo(model.DisabledInfo{Policy: "license", Message: "unpaid", Revision: revs[1]}))

	got := read(t, encode(t, st))
	b, ok := got.Revision(2)
	require.True(t, ok)
	require.NotSame(t, revs[1], b)

	info, ok := got.DisabledInfo(b, "license")
	require.True(t, ok)
	require.Same(t, b, info.Revision)
	require.Equal(t, "unpaid", info.Message)
	require.Equal(t, []*model.Revision{b}, got.DisabledRevisions())

	_, ok = got.DisabledInfo(revs[1], "license")
	require.False(t, ok, "the original instance is not known to the restored state")
}

// =============================================================================
// Unusable Blobs
// =============================================================================

func TestUnusableBlobsReadAsAbsent(t *testing.T) {
	good := encode(t, sample(t))

	wrongVersion := append([]byte(nil), good...)
	wrongVersion[len(Magic)+1]++

	truncated := good[:len(good)/2]

	garbage := append([]byte(nil), good[:headerSize]...)
	garbage = append(garbage, []byte("not zstd at all")...)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), good[len(Magic):]...)},
		{"wrong version", wrongVersion},
		{"truncated", truncated},
		{"garbage payload", garbage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Nil(t, read(t, tt.data))
			require.Nil(t, Decode(tt.data, options()))
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestIOErrorsPropagate(t *testing.T) {
	ctx := context.Background()

	st, err := Read(ctx, failingReader{}, options())
	require.Nil(t, st)
	require.True(t, bwerrors.Is(err, bwerrors.ErrCodeIO))

	err = Write(ctx, sample(t), failingWriter{})
	require.True(t, bwerrors.Is(err, bwerrors.ErrCodeIO))
}

// =============================================================================
// Directories and Caches
// =============================================================================

func TestDirRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested")

	st, err := ReadDir(ctx, dir, options())
	require.NoError(t, err)
	require.Nil(t, st, "missing directory reads as no state")

	want := sample(t)
	require.NoError(t, WriteDir(ctx, want, dir))
	require.NoError(t, WriteDir(ctx, want, dir), "overwrite")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")

	got, err := ReadDir(ctx, dir, options())
	require.NoError(t, err)
	requireSameGraph(t, want, got)
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	backends := map[string]func(t *testing.T) cache.Cache{
		"file": func(t *testing.T) cache.Cache {
			c, err := cache.NewFileCache(t.TempDir())
			require.NoError(t, err)
			return c
		},
		"badger": func(t *testing.T) cache.Cache {
			c, err := cache.NewBadgerCache(cache.BadgerConfig{InMemory: true})
			require.NoError(t, err)
			return c
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			c := open(t)
			defer c.Close()
			key := cache.NewDefaultKeyer().StateKey("test")

			st, err := Load(ctx, c, key, options())
			require.NoError(t, err)
			require.Nil(t, st)

			want := sample(t)
			require.NoError(t, Save(ctx, c, key, want, 0))
			got, err := Load(ctx, c, key, options())
			require.NoError(t, err)
			requireSameGraph(t, want, got)

			require.NoError(t, c.Set(ctx, key, []byte("BWST\x00\x09junk"), 0))
			st, err = Load(ctx, c, key, options())
			require.NoError(t, err)
			require.Nil(t, st)
			_, hit, err := c.Get(ctx, key)
			require.NoError(t, err)
			require.False(t, hit, "stale entries are deleted")
		})
	}
}
