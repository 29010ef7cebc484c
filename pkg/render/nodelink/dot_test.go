package nodelink

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/state"
	"github.com/matzehuels/bundlewire/pkg/version"
)

func revision(t *testing.T, d model.Declaration) *model.Revision {
	t.Helper()
	r, err := model.NewRevision(d)
	if err != nil {
		t.Fatalf("NewRevision(%s): %v", d.SymbolicName, err)
	}
	return r
}

// wired returns a resolved state: b imports x from a and requires a, f is a
// fragment of a and c cannot resolve.
func wired(t *testing.T) *state.State {
	t.Helper()
	v1 := version.MustParse("1.0")
	revs := []*model.Revision{
		revision(t, model.Declaration{ID: 1, SymbolicName: "a", Version: v1, Location: "file:a.jar",
			Capabilities: []*model.Capability{{Namespace: model.Package, Name: "x", Version: v1}}}),
		revision(t, model.Declaration{ID: 2, SymbolicName: "b", Version: v1,
			Requirements: []*model.Requirement{
				{Namespace: model.Package, Name: "x"},
				{Namespace: model.Bundle, Name: "a"},
			}}),
		revision(t, model.Declaration{ID: 3, SymbolicName: "f", Version: v1, Host: &model.Requirement{Name: "a"}}),
		revision(t, model.Declaration{ID: 4, SymbolicName: "c", Version: v1,
			Requirements: []*model.Requirement{{Namespace: model.Package, Name: "missing"}}}),
	}
	st := state.New(state.Options{Logger: log.New(io.Discard)})
	for _, r := range revs {
		if _, err := st.AddRevision(r); err != nil {
			t.Fatalf("AddRevision: %v", err)
		}
	}
	if _, err := st.Resolve(context.Background(), nil, false); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return st
}

func TestToDOT_Basic(t *testing.T) {
	dot := ToDOT(wired(t).All(), Options{})

	for _, want := range []string{
		"digraph wiring",
		`"r1" [label="a\n1.0.0"]`,
		`"r2" -> "r1";`,
		`"r2" -> "r1" [style=bold];`,
		`"r3" -> "r1" [style=dashed, arrowhead=empty];`,
		"shape=note",
		"fillcolor=mistyrose",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT() missing %q in:\n%s", want, dot)
		}
	}
	if strings.Contains(dot, `"r4" ->`) {
		t.Error("unresolved revision should have no outgoing wires")
	}
}

func TestToDOT_Detailed(t *testing.T) {
	dot := ToDOT(wired(t).All(), Options{Detailed: true})

	if !strings.Contains(dot, `"r2" -> "r1" [label="x"];`) {
		t.Errorf("detailed output missing wire label:\n%s", dot)
	}
	if !strings.Contains(dot, `id: 1\nfile:a.jar`) {
		t.Errorf("detailed output missing id and location:\n%s", dot)
	}
}

func TestToDOT_Filters(t *testing.T) {
	revs := wired(t).All()

	dot := ToDOT(revs, Options{Namespace: model.PackageNamespaceName})
	if strings.Contains(dot, "style=bold") || strings.Contains(dot, "arrowhead=empty") {
		t.Errorf("namespace filter kept other wires:\n%s", dot)
	}

	dot = ToDOT(revs, Options{HideUnresolved: true})
	if strings.Contains(dot, `"r4"`) {
		t.Errorf("HideUnresolved kept r4:\n%s", dot)
	}
}

func TestToDOT_Deterministic(t *testing.T) {
	revs := wired(t).All()
	if ToDOT(revs, Options{Detailed: true}) != ToDOT(revs, Options{Detailed: true}) {
		t.Error("ToDOT() is not deterministic")
	}
}

func TestHash(t *testing.T) {
	st := wired(t)
	h1 := Hash(st.All())
	if h1 != Hash(st.All()) {
		t.Error("Hash() is not stable")
	}

	b, _ := st.Revision(2)
	if _, err := st.RemoveRevision(b); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Resolve(context.Background(), nil, true); err != nil {
		t.Fatal(err)
	}
	if Hash(st.All()) == h1 {
		t.Error("Hash() unchanged after rewiring")
	}
}

func TestRender_UnsupportedFormat(t *testing.T) {
	_, err := Render(context.Background(), nil, "gif", Options{})
	if !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("Render(gif) error = %v, want %s", err, errors.ErrCodeInvalidFormat)
	}
}

func TestRender_DOT(t *testing.T) {
	out, err := Render(context.Background(), wired(t).All(), "dot", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(out), "digraph wiring {") {
		t.Errorf("Render(dot) = %q", out)
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="100pt" height="50pt" viewBox="0.00 0.00 100.00 50.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	got := string(normalizeViewBox(in))
	want := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100.00 50.00" width="100" height="50"><g/></svg>`
	if got != want {
		t.Errorf("normalizeViewBox() = %s, want %s", got, want)
	}

	plain := []byte("<svg></svg>")
	if string(normalizeViewBox(plain)) != string(plain) {
		t.Error("normalizeViewBox() changed an SVG without viewBox")
	}
}
