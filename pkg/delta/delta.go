// Package delta computes the observable changes between two snapshots of a
// State.
//
// Diff is a pure function: it compares two Snapshots (revision instance,
// resolution status, declaration and wiring fingerprints) and yields one
// BundleDelta per changed revision. Revisions are matched by instance first
// and by id second, so the same code serves incremental resolves within one
// State and comparisons across independently loaded States.
package delta

import (
	"strings"

	"github.com/matzehuels/bundlewire/pkg/model"
)

// Flag is a bit set of change kinds.
type Flag uint16

const (
	Added Flag = 1 << iota
	Removed
	Resolved
	Unresolved
	Updated
	LinkageChanged
	RemovalPending
	RemovalComplete
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{Added, "ADDED"},
	{Removed, "REMOVED"},
	{Resolved, "RESOLVED"},
	{Unresolved, "UNRESOLVED"},
	{Updated, "UPDATED"},
	{LinkageChanged, "LINKAGE_CHANGED"},
	{RemovalPending, "REMOVAL_PENDING"},
	{RemovalComplete, "REMOVAL_COMPLETE"},
}

// Has reports whether all bits of o are set in f.
func (f Flag) Has(o Flag) bool { return f&o == o }

// Any reports whether any bit of o is set in f.
func (f Flag) Any(o Flag) bool { return f&o != 0 }

// String renders f as "ADDED|RESOLVED".
func (f Flag) String() string {
	if f == 0 {
		return "NONE"
	}
	return strings.Join(f.Names(), "|")
}

// Names lists the set flags in declaration order.
func (f Flag) Names() []string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return names
}

// BundleDelta is the combined change of one revision.
type BundleDelta struct {
	Revision *model.Revision
	Flags    Flag
}

// String renders the delta for logs.
func (d BundleDelta) String() string {
	return d.Revision.String() + " " + d.Flags.String()
}

// StateDelta is the ordered list of changes produced by one resolve or
// comparison. Each revision instance appears at most once.
type StateDelta struct {
	Entries []BundleDelta
}

// Len returns the number of changed revisions.
func (s StateDelta) Len() int { return len(s.Entries) }

// IsEmpty reports whether nothing changed.
func (s StateDelta) IsEmpty() bool { return len(s.Entries) == 0 }

// Get returns the delta for revision instance r.
func (s StateDelta) Get(r *model.Revision) (BundleDelta, bool) {
	for _, e := range s.Entries {
		if e.Revision == r {
			return e, true
		}
	}
	return BundleDelta{}, false
}

// Flags returns the flags recorded for r, 0 when r did not change.
func (s StateDelta) Flags(r *model.Revision) Flag {
	d, _ := s.Get(r)
	return d.Flags
}

// Matching returns the entries that have any bit of mask set.
func (s StateDelta) Matching(mask Flag) []BundleDelta {
	var out []BundleDelta
	for _, e := range s.Entries {
		if e.Flags.Any(mask) {
			out = append(out, e)
		}
	}
	return out
}

// String renders one entry per line.
func (s StateDelta) String() string {
	lines := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}
