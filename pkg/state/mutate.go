package state

import (
	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/model"
)

// AddRevision claims r for this State. It reports false when r is already
// part of the State. A revision owned by another State, or a second live
// revision with the same id, is an error.
func (s *State) AddRevision(r *model.Revision) (bool, error) {
	if r == nil {
		return false, errors.New(errors.ErrCodeInvalidInput, "nil revision")
	}
	if r.Owner() == s && r.Lifecycle() == model.Owned {
		return false, nil
	}
	if existing, ok := s.Revision(r.ID()); ok {
		return false, errors.New(errors.ErrCodeInvalidInput, "revision id %d is already used by %s", r.ID(), existing)
	}
	if err := r.Claim(s); err != nil {
		return false, err
	}
	s.revs = append(s.revs, r)
	s.touch()
	s.opts.Logger.Debug("revision added", "revision", r, "id", r.ID())
	return true, nil
}

// RemoveRevision removes r. A resolved revision becomes removal pending and
// stays wired to its dependents; an unresolved one is released at once. It
// reports false when r is not live in this State.
func (s *State) RemoveRevision(r *model.Revision) (bool, error) {
	if r == nil {
		return false, errors.New(errors.ErrCodeInvalidInput, "nil revision")
	}
	if r.Lifecycle() == model.Released {
		return false, nil
	}
	if err := r.CheckOwner(s); err != nil {
		return false, err
	}
	if r.Lifecycle() == model.RemovalPending {
		return false, nil
	}

	delete(s.disabled, r)
	if r.IsResolved() {
		r.MarkRemovalPending()
		s.opts.Logger.Debug("revision removal pending", "revision", r)
	} else {
		s.drop(r)
		s.opts.Logger.Debug("revision removed", "revision", r)
	}
	s.touch()
	return true, nil
}

// UpdateRevision atomically replaces the live revision with r's id by r.
// The replaced instance becomes removal pending when it was resolved and is
// released otherwise. It reports false when no live revision has r's id.
func (s *State) UpdateRevision(r *model.Revision) (bool, error) {
	if r == nil {
		return false, errors.New(errors.ErrCodeInvalidInput, "nil revision")
	}
	old, ok := s.Revision(r.ID())
	if !ok {
		return false, nil
	}
	if old == r {
		return false, nil
	}
	if err := r.Claim(s); err != nil {
		return false, err
	}

	i := s.index(old)
	s.revs[i] = r
	delete(s.disabled, old)
	if old.IsResolved() {
		old.MarkRemovalPending()
		s.revs = append(s.revs, old)
	} else {
		old.Release()
	}
	delete(s.system, old)
	s.touch()
	s.opts.Logger.Debug("revision updated", "old", old, "new", r, "pending", old.Lifecycle() == model.RemovalPending)
	return true, nil
}

// drop releases r and forgets it.
func (s *State) drop(r *model.Revision) {
	if i := s.index(r); i >= 0 {
		s.revs = append(s.revs[:i], s.revs[i+1:]...)
	}
	delete(s.disabled, r)
	delete(s.system, r)
	r.Release()
}

func (s *State) index(r *model.Revision) int {
	for i, x := range s.revs {
		if x == r {
			return i
		}
	}
	return -1
}

// =============================================================================
// Reconcile
// =============================================================================

// ReconcileReport counts the operations Reconcile applied.
type ReconcileReport struct {
	Added     int
	Updated   int
	Removed   int
	Unchanged int
}

// Changed reports whether Reconcile modified the State.
func (r ReconcileReport) Changed() bool {
	return r.Added+r.Updated+r.Removed > 0
}

// Reconcile makes the live revisions match revs by id: new ids are added,
// ids whose declaration changed are updated and ids missing from revs are
// removed. Revisions whose declaration is unchanged are left alone and the
// corresponding element of revs is not claimed.
func (s *State) Reconcile(revs []*model.Revision) (ReconcileReport, error) {
	var report ReconcileReport
	wanted := make(map[int64]bool, len(revs))
	for _, r := range revs {
		if wanted[r.ID()] {
			return report, errors.New(errors.ErrCodeInvalidInput, "revision id %d appears more than once", r.ID())
		}
		wanted[r.ID()] = true
	}

	for _, live := range s.Revisions() {
		if !wanted[live.ID()] {
			if _, err := s.RemoveRevision(live); err != nil {
				return report, err
			}
			report.Removed++
		}
	}

	for _, r := range revs {
		live, ok := s.Revision(r.ID())
		switch {
		case !ok:
			if _, err := s.AddRevision(r); err != nil {
				return report, err
			}
			report.Added++
		case live.Fingerprint() == r.Fingerprint():
			report.Unchanged++
		default:
			if _, err := s.UpdateRevision(r); err != nil {
				return report, err
			}
			report.Updated++
		}
	}
	return report, nil
}

// =============================================================================
// Disabled Infos
// =============================================================================

// AddDisabledInfo disables info.Revision under info.Policy, replacing an
// earlier info with the same policy. Disabled revisions are not considered
// by later resolve passes; a resolved one keeps its wiring until refreshed.
func (s *State) AddDisabledInfo(info model.DisabledInfo) error {
	if info.Revision == nil {
		return errors.New(errors.ErrCodeInvalidInput, "disabled info without revision")
	}
	if err := info.Revision.CheckOwner(s); err != nil {
		return err
	}
	infos := s.disabled[info.Revision]
	for i, existing := range infos {
		if existing.Policy == info.Policy {
			infos[i] = info
			s.touch()
			return nil
		}
	}
	s.disabled[info.Revision] = append(infos, info)
	s.touch()
	s.opts.Logger.Debug("revision disabled", "revision", info.Revision, "policy", info.Policy)
	return nil
}

// RemoveDisabledInfo removes the info with info's revision and policy. It
// reports whether one was present.
func (s *State) RemoveDisabledInfo(info model.DisabledInfo) bool {
	infos := s.disabled[info.Revision]
	for i, existing := range infos {
		if existing.Policy != info.Policy {
			continue
		}
		infos = append(infos[:i], infos[i+1:]...)
		if len(infos) == 0 {
			delete(s.disabled, info.Revision)
		} else {
			s.disabled[info.Revision] = infos
		}
		s.touch()
		return true
	}
	return false
}

// DisabledInfo returns the info recorded for r under policy.
func (s *State) DisabledInfo(r *model.Revision, policy string) (model.DisabledInfo, bool) {
	for _, info := range s.disabled[r] {
		if info.Policy == policy {
			return info, true
		}
	}
	return model.DisabledInfo{}, false
}

// DisabledInfos returns every info recorded for r.
func (s *State) DisabledInfos(r *model.Revision) []model.DisabledInfo {
	return append([]model.DisabledInfo(nil), s.disabled[r]...)
}

// DisabledRevisions returns the revisions carrying at least one info, in
// insertion order.
func (s *State) DisabledRevisions() []*model.Revision {
	return s.filter(func(r *model.Revision) bool { return len(s.disabled[r]) > 0 })
}
