package delta

import (
	"testing"

	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/version"
)

func rev(id int64, name, ver string) *model.Revision {
	return model.MustNewRevision(model.Declaration{ID: id, SymbolicName: name, Version: version.MustParse(ver)})
}

func resolve(r *model.Revision) {
	r.SetWiring(&model.Wiring{Revision: r})
}

func TestFlagString(t *testing.T) {
	tests := []struct {
		f    Flag
		want string
	}{
		{0, "NONE"},
		{Added | Resolved, "ADDED|RESOLVED"},
		{Removed | Unresolved | RemovalComplete, "REMOVED|UNRESOLVED|REMOVAL_COMPLETE"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("Flag(%d).String() = %q, want %q", tt.f, got, tt.want)
		}
	}
	if !(Added | Resolved).Has(Resolved) || (Added).Has(Added|Resolved) {
		t.Error("Has() mismatch")
	}
}

func TestDiffAddedAndResolved(t *testing.T) {
	a, b := rev(1, "a", "1.0"), rev(2, "b", "1.0")
	prev := Take(nil)
	resolve(a)
	d := Diff(prev, Take([]*model.Revision{a, b}))

	if got := d.Flags(a); got != Added|Resolved {
		t.Errorf("a flags = %v, want ADDED|RESOLVED", got)
	}
	if got := d.Flags(b); got != Added {
		t.Errorf("b flags = %v, want ADDED", got)
	}
}

func TestDiffNoChange(t *testing.T) {
	a := rev(1, "a", "1.0")
	resolve(a)
	s := Take([]*model.Revision{a})
	if d := Diff(s, Take([]*model.Revision{a})); !d.IsEmpty() {
		t.Errorf("Diff() = %v, want empty", d)
	}
}

func TestDiffStatusAndLinkage(t *testing.T) {
	a, b, c := rev(1, "a", "1.0"), rev(2, "b", "1.0"), rev(3, "c", "1.0")
	resolve(a)
	resolve(b)
	prev := Take([]*model.Revision{a, b, c})

	a.SetWiring(nil)
	resolve(c)
	b.SetWiring(&model.Wiring{Revision: b, Fragments: []*model.Revision{c}})

	d := Diff(prev, Take([]*model.Revision{a, b, c}))
	if got := d.Flags(a); got != Unresolved {
		t.Errorf("a flags = %v, want UNRESOLVED", got)
	}
	if got := d.Flags(b); got != LinkageChanged {
		t.Errorf("b flags = %v, want LINKAGE_CHANGED", got)
	}
	if got := d.Flags(c); got != Resolved {
		t.Errorf("c flags = %v, want RESOLVED", got)
	}
}

func TestDiffRemoval(t *testing.T) {
	a := rev(1, "a", "1.0")
	resolve(a)
	prev := Take([]*model.Revision{a})

	a.MarkRemovalPending()
	pending := Take([]*model.Revision{a})
	if got := Diff(prev, pending).Flags(a); got != Removed|RemovalPending {
		t.Errorf("pending flags = %v, want REMOVED|REMOVAL_PENDING", got)
	}

	if got := Diff(pending, Take(nil)).Flags(a); got != Removed|Unresolved|RemovalComplete {
		t.Errorf("released flags = %v, want REMOVED|UNRESOLVED|REMOVAL_COMPLETE", got)
	}
}

func TestDiffUpdate(t *testing.T) {
	old := rev(1, "a", "1.0")
	resolve(old)
	prev := Take([]*model.Revision{old})

	repl := rev(1, "a", "2.0")
	old.MarkRemovalPending()
	d := Diff(prev, Take([]*model.Revision{repl, old}))

	if got := d.Flags(repl); got != Updated {
		t.Errorf("new instance flags = %v, want UPDATED", got)
	}
	if got := d.Flags(old); got != RemovalPending {
		t.Errorf("old instance flags = %v, want REMOVAL_PENDING", got)
	}

	mid := Take([]*model.Revision{repl, old})
	resolve(repl)
	d = Diff(mid, Take([]*model.Revision{repl}))
	if got := d.Flags(repl); got != Resolved {
		t.Errorf("new instance flags = %v, want RESOLVED", got)
	}
	if got := d.Flags(old); got != Unresolved|RemovalComplete {
		t.Errorf("old instance flags = %v, want UNRESOLVED|REMOVAL_COMPLETE", got)
	}
}

func TestDiffAcrossInstances(t *testing.T) {
	base := []*model.Revision{rev(1, "a", "1.0"), rev(2, "b", "1.0")}
	other := []*model.Revision{rev(1, "a", "1.0"), rev(2, "b", "1.1"), rev(3, "c", "1.0")}
	resolve(other[0])

	d := Diff(Take(base), Take(other))
	if got := d.Flags(other[0]); got != Resolved {
		t.Errorf("a flags = %v, want RESOLVED", got)
	}
	if got := d.Flags(other[1]); got != Updated {
		t.Errorf("b flags = %v, want UPDATED", got)
	}
	if got := d.Flags(other[2]); got != Added {
		t.Errorf("c flags = %v, want ADDED", got)
	}
	if len(d.Matching(Added|Updated)) != 2 {
		t.Errorf("Matching() = %v", d.Matching(Added|Updated))
	}
}
