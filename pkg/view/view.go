// Package view flattens revisions, wirings and deltas into JSON-friendly
// structs for the HTTP API and the CLI's --json output.
package view

import (
	"github.com/matzehuels/bundlewire/pkg/delta"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/state"
)

// Revision summarizes one revision.
type Revision struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Location  string   `json:"location,omitempty"`
	Singleton bool     `json:"singleton,omitempty"`
	Fragment  bool     `json:"fragment,omitempty"`
	Resolved  bool     `json:"resolved"`
	Lifecycle string   `json:"lifecycle"`
	Disabled  []string `json:"disabled,omitempty"` // policies
}

// Capability describes a declared or implicit capability.
type Capability struct {
	Namespace  string         `json:"namespace"`
	Name       string         `json:"name,omitempty"`
	Version    string         `json:"version,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Uses       []string       `json:"uses,omitempty"`
	Implicit   bool           `json:"implicit,omitempty"`
}

// Requirement describes a requirement. Declarer differs from the viewed
// revision for requirements contributed by attached fragments.
type Requirement struct {
	Namespace   string `json:"namespace"`
	Name        string `json:"name,omitempty"`
	Range       string `json:"range,omitempty"`
	Filter      string `json:"filter,omitempty"`
	Resolution  string `json:"resolution"`
	Cardinality string `json:"cardinality"`
	Visibility  string `json:"visibility"`
	Declarer    int64  `json:"declarer"`
}

// Wire is one requirement-to-capability link.
type Wire struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name,omitempty"`
	Requirer  int64  `json:"requirer"`
	Provider  int64  `json:"provider"`
	Version   string `json:"version,omitempty"`
}

// Detail is a revision with its declarations and wiring.
type Detail struct {
	Revision
	Capabilities []Capability  `json:"capabilities"`
	Requirements []Requirement `json:"requirements"`
	Required     []Wire        `json:"required,omitempty"`
	Provided     []Wire        `json:"provided,omitempty"`
	Fragments    []int64       `json:"fragments,omitempty"`
	Hosts        []int64       `json:"hosts,omitempty"`
}

// Entry is one changed revision.
type Entry struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Flags   []string `json:"flags"`
}

// Delta is a state delta.
type Delta struct {
	Timestamp int64   `json:"timestamp"`
	Entries   []Entry `json:"entries"`
}

// State summarizes a whole state.
type State struct {
	ID        string     `json:"id"`
	Timestamp int64      `json:"timestamp"`
	Revisions []Revision `json:"revisions"`
	Resolved  int        `json:"resolved"`
	Pending   int        `json:"removal_pending"`
}

// NewRevision summarizes r. st supplies disabled infos and may be nil.
func NewRevision(r *model.Revision, st *state.State) Revision {
	v := Revision{
		ID:        r.ID(),
		Name:      r.SymbolicName(),
		Version:   r.Version().String(),
		Location:  r.Location(),
		Singleton: r.IsSingleton(),
		Fragment:  r.IsFragment(),
		Resolved:  r.IsResolved(),
		Lifecycle: r.Lifecycle().String(),
	}
	if st != nil {
		for _, info := range st.DisabledInfos(r) {
			v.Disabled = append(v.Disabled, info.Policy)
		}
	}
	return v
}

// NewDetail describes r. For a resolved host the capabilities and
// requirements include those of attached fragments.
func NewDetail(r *model.Revision, st *state.State) Detail {
	d := Detail{Revision: NewRevision(r, st)}
	caps, reqs := r.Capabilities(), r.Requirements()
	if w := r.Wiring(); w != nil && !r.IsFragment() {
		caps, reqs = w.Capabilities, w.Requirements
	}
	d.Capabilities = make([]Capability, 0, len(caps))
	for _, c := range caps {
		d.Capabilities = append(d.Capabilities, newCapability(c))
	}
	d.Requirements = make([]Requirement, 0, len(reqs))
	if h := r.Host(); h != nil {
		d.Requirements = append(d.Requirements, newRequirement(h))
	}
	for _, req := range reqs {
		d.Requirements = append(d.Requirements, newRequirement(req))
	}

	w := r.Wiring()
	if w == nil {
		return d
	}
	for _, wire := range w.Required {
		d.Required = append(d.Required, newWire(wire))
	}
	for _, wire := range w.Provided {
		d.Provided = append(d.Provided, newWire(wire))
	}
	for _, f := range w.Fragments {
		d.Fragments = append(d.Fragments, f.ID())
	}
	for _, h := range w.Hosts() {
		d.Hosts = append(d.Hosts, h.ID())
	}
	return d
}

func newCapability(c *model.Capability) Capability {
	v := Capability{
		Namespace:  c.Namespace.String(),
		Name:       c.Name,
		Attributes: c.Attributes,
		Uses:       c.Uses,
		Implicit:   c.Implicit(),
	}
	if !c.Version.IsEmpty() {
		v.Version = c.Version.String()
	}
	return v
}

func newRequirement(r *model.Requirement) Requirement {
	v := Requirement{
		Namespace:   r.Namespace.String(),
		Name:        r.Name,
		Range:       r.Range.String(),
		Resolution:  r.Resolution.String(),
		Cardinality: r.Cardinality.String(),
		Visibility:  r.Visibility.String(),
	}
	if r.Filter != nil {
		v.Filter = r.Filter.String()
	}
	if d := r.Revision(); d != nil {
		v.Declarer = d.ID()
	}
	return v
}

func newWire(w *model.Wire) Wire {
	v := Wire{
		Namespace: w.Capability.Namespace.String(),
		Name:      w.Capability.Name,
		Requirer:  w.Requirer.ID(),
		Provider:  w.Provider.ID(),
	}
	if v.Name == "" {
		v.Name = w.Requirement.Name
	}
	if !w.Capability.Version.IsEmpty() {
		v.Version = w.Capability.Version.String()
	}
	return v
}

// NewDelta flattens d. ts is the state timestamp the delta leads to.
func NewDelta(d delta.StateDelta, ts int64) Delta {
	out := Delta{Timestamp: ts, Entries: make([]Entry, 0, d.Len())}
	for _, e := range d.Entries {
		out.Entries = append(out.Entries, Entry{
			ID:      e.Revision.ID(),
			Name:    e.Revision.SymbolicName(),
			Version: e.Revision.Version().String(),
			Flags:   e.Flags.Names(),
		})
	}
	return out
}

// NewState summarizes st including removal-pending revisions.
func NewState(st *state.State) State {
	all := st.All()
	out := State{
		ID:        st.ID().String(),
		Timestamp: st.Timestamp(),
		Revisions: make([]Revision, 0, len(all)),
		Resolved:  len(st.ResolvedRevisions()),
		Pending:   len(st.RemovalPending()),
	}
	for _, r := range all {
		out.Revisions = append(out.Revisions, NewRevision(r, st))
	}
	return out
}
