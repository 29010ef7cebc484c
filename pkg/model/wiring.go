package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Wire connects a requirement to the capability chosen to satisfy it.
type Wire struct {
	Requirer    *Revision
	Requirement *Requirement
	Provider    *Revision
	Capability  *Capability
}

// String renders w as "requirer -> namespace; name -> provider".
func (w *Wire) String() string {
	name := w.Capability.Name
	if name == "" {
		name = w.Requirement.Name
	}
	return fmt.Sprintf("%s -> %s; %s -> %s", w.Requirer, w.Capability.Namespace, name, w.Provider)
}

// key identifies a wire by ids and indices so equal wires in different
// States or instances compare equal.
func (w *Wire) key() string {
	return fmt.Sprintf("%d:%d:%d>%d:%d",
		w.Requirer.ID(), w.Requirement.Revision().ID(), w.Requirement.Index(),
		w.Provider.ID(), w.Capability.Index())
}

// Wiring is the resolved view of a revision. For a host it includes the
// requirements and capabilities of attached fragments; for a fragment it
// holds the wires to its hosts.
type Wiring struct {
	Revision     *Revision
	Required     []*Wire
	Provided     []*Wire
	Capabilities []*Capability // host capabilities first, then each fragment's in attachment order
	Requirements []*Requirement
	Fragments    []*Revision
}

// RequiredWires returns the required wires in namespace ns.
func (w *Wiring) RequiredWires(ns Namespace) []*Wire {
	return filterWires(w.Required, ns)
}

// ProvidedWires returns the provided wires in namespace ns.
func (w *Wiring) ProvidedWires(ns Namespace) []*Wire {
	return filterWires(w.Provided, ns)
}

func filterWires(wires []*Wire, ns Namespace) []*Wire {
	var out []*Wire
	for _, wire := range wires {
		if wire.Capability.Namespace == ns {
			out = append(out, wire)
		}
	}
	return out
}

// CapabilitiesOf returns the selected capabilities in namespace ns.
func (w *Wiring) CapabilitiesOf(ns Namespace) []*Capability {
	var out []*Capability
	for _, c := range w.Capabilities {
		if c.Namespace == ns {
			out = append(out, c)
		}
	}
	return out
}

// Hosts returns the hosts a fragment wiring is attached to.
func (w *Wiring) Hosts() []*Revision {
	var out []*Revision
	for _, wire := range w.RequiredWires(Host) {
		out = append(out, wire.Provider)
	}
	return out
}

// Dependents returns the distinct revisions wired to w's revision.
func (w *Wiring) Dependents() []*Revision {
	seen := map[*Revision]bool{}
	var out []*Revision
	for _, wire := range w.Provided {
		if !seen[wire.Requirer] {
			seen[wire.Requirer] = true
			out = append(out, wire.Requirer)
		}
	}
	return out
}

// Fingerprint digests the required wires and fragments by ids and indices,
// so it is stable across persistence round trips.
func (w *Wiring) Fingerprint() string {
	keys := make([]string, 0, len(w.Required)+len(w.Fragments))
	for _, wire := range w.Required {
		keys = append(keys, wire.key())
	}
	sort.Strings(keys)
	for _, f := range w.Fragments {
		keys = append(keys, fmt.Sprintf("frag:%d", f.ID()))
	}
	sum := sha256.Sum256([]byte(strings.Join(keys, "\n")))
	return hex.EncodeToString(sum[:])
}

// DisabledInfo administratively excludes a revision from resolution until it
// is removed. A revision may carry one info per policy.
type DisabledInfo struct {
	Policy   string
	Message  string
	Revision *Revision
}

// String renders the info for logs.
func (d DisabledInfo) String() string {
	return fmt.Sprintf("%s disabled by %s: %s", d.Revision, d.Policy, d.Message)
}
