package delta

import "github.com/matzehuels/bundlewire/pkg/model"

// Entry is the recorded state of one revision instance.
type Entry struct {
	Revision *model.Revision
	ID       int64
	Resolved bool
	Pending  bool
	Decl     string // declaration fingerprint
	Wiring   string // wiring fingerprint, empty when unresolved
}

// Snapshot is an ordered record of revision states.
type Snapshot struct {
	Entries []Entry
}

// Take records the current state of revs, preserving their order.
func Take(revs []*model.Revision) Snapshot {
	s := Snapshot{Entries: make([]Entry, len(revs))}
	for i, r := range revs {
		e := Entry{
			Revision: r,
			ID:       r.ID(),
			Resolved: r.IsResolved(),
			Pending:  r.Lifecycle() == model.RemovalPending,
			Decl:     r.Fingerprint(),
		}
		if w := r.Wiring(); w != nil {
			e.Wiring = w.Fingerprint()
		}
		s.Entries[i] = e
	}
	return s
}

// Diff reports how next differs from prev. New and surviving revisions are
// listed in next's order, vanished ones afterwards in prev's order.
func Diff(prev, next Snapshot) StateDelta {
	byInstance := make(map[*model.Revision]int, len(prev.Entries))
	prevIDs := make(map[int64]bool, len(prev.Entries))
	for i, e := range prev.Entries {
		byInstance[e.Revision] = i
		prevIDs[e.ID] = true
	}
	liveIDs := make(map[int64]int, len(next.Entries))
	for _, e := range next.Entries {
		if !e.Pending {
			liveIDs[e.ID]++
		}
	}

	matched := make([]bool, len(prev.Entries))
	match := make([]int, len(next.Entries))
	for i, e := range next.Entries {
		match[i] = -1
		if j, ok := byInstance[e.Revision]; ok {
			match[i] = j
			matched[j] = true
		}
	}
	for i, e := range next.Entries {
		if match[i] >= 0 {
			continue
		}
		for j, p := range prev.Entries {
			if !matched[j] && p.ID == e.ID {
				match[i] = j
				matched[j] = true
				break
			}
		}
	}

	var out StateDelta
	for i, n := range next.Entries {
		var f Flag
		if j := match[i]; j >= 0 {
			f = changed(prev.Entries[j], n, liveIDs[n.ID] > 0)
		} else {
			if prevIDs[n.ID] {
				f |= Updated
			} else {
				f |= Added
			}
			if n.Resolved {
				f |= Resolved
			}
			if n.Pending {
				f |= RemovalPending
			}
		}
		if f != 0 {
			out.Entries = append(out.Entries, BundleDelta{Revision: n.Revision, Flags: f})
		}
	}

	for j, p := range prev.Entries {
		if matched[j] {
			continue
		}
		f := RemovalComplete
		if liveIDs[p.ID] == 0 {
			f |= Removed
		}
		if p.Resolved {
			f |= Unresolved
		}
		out.Entries = append(out.Entries, BundleDelta{Revision: p.Revision, Flags: f})
	}
	return out
}

func changed(p, n Entry, replaced bool) Flag {
	var f Flag
	if p.Decl != n.Decl {
		f |= Updated
	}
	switch {
	case !p.Resolved && n.Resolved:
		f |= Resolved
	case p.Resolved && !n.Resolved:
		f |= Unresolved
	case p.Resolved && n.Resolved && p.Wiring != n.Wiring:
		f |= LinkageChanged
	}
	if !p.Pending && n.Pending {
		f |= RemovalPending
		if !replaced {
			f |= Removed
		}
	}
	return f
}
