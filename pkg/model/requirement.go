package model

import (
	"fmt"
	"strings"

	"github.com/matzehuels/bundlewire/pkg/filter"
	"github.com/matzehuels/bundlewire/pkg/version"
)

// Resolution says how strongly a requirement must be satisfied.
type Resolution uint8

const (
	Mandatory Resolution = iota
	Optional
	Dynamic
)

func (r Resolution) String() string {
	switch r {
	case Optional:
		return "optional"
	case Dynamic:
		return "dynamic"
	}
	return "mandatory"
}

// Cardinality is the number of wires a requirement accepts.
type Cardinality uint8

const (
	Single Cardinality = iota
	Multiple
)

func (c Cardinality) String() string {
	if c == Multiple {
		return "multiple"
	}
	return "single"
}

// Effective is the time a requirement or capability takes effect. Only
// resolve-time entries participate in wiring.
type Effective uint8

const (
	EffectiveResolve Effective = iota
	EffectiveActive
)

func (e Effective) String() string {
	if e == EffectiveActive {
		return "active"
	}
	return "resolve"
}

// Visibility controls whether packages reached through a bundle requirement
// are re-exported to the requirer's own dependents.
type Visibility uint8

const (
	Private Visibility = iota
	Reexport
)

func (v Visibility) String() string {
	if v == Reexport {
		return "reexport"
	}
	return "private"
}

// Requirement is a declared need of a revision.
//
// Name carries the package name (or dynamic pattern such as "org.example.*"),
// the required symbolic name for bundle and host requirements, or the
// execution environment name. Generic, identity and native-code
// requirements usually select through Filter instead.
type Requirement struct {
	Namespace   Namespace
	Name        string
	Range       version.Range
	Filter      *filter.Filter
	Attributes  map[string]any
	Resolution  Resolution
	Cardinality Cardinality
	Effective   Effective
	Visibility  Visibility

	revision *Revision
	index    int // position in the owner's declared requirements; -1 for the host requirement
}

// Revision returns the declaring revision, or nil before construction.
func (r *Requirement) Revision() *Revision { return r.revision }

// Index returns the position of r in its revision's declared requirements,
// or -1 for a fragment-host requirement.
func (r *Requirement) Index() int { return r.index }

// IsOptional reports whether r may stay unsatisfied.
func (r *Requirement) IsOptional() bool { return r.Resolution == Optional }

// IsDynamic reports whether r is a dynamic import.
func (r *Requirement) IsDynamic() bool { return r.Resolution == Dynamic }

// IsMultiple reports whether r accepts more than one wire.
func (r *Requirement) IsMultiple() bool { return r.Cardinality == Multiple }

// Wired reports whether the resolver wires r during a resolve pass. Dynamic
// and active-time requirements are skipped, as are platform-provided ones.
func (r *Requirement) Wired() bool {
	return r.Resolution != Dynamic && r.Effective == EffectiveResolve && !r.Namespace.PlatformProvided()
}

// MatchesPackageName reports whether a dynamic package pattern covers pkg.
func (r *Requirement) MatchesPackageName(pkg string) bool {
	switch {
	case r.Name == "*":
		return true
	case strings.HasSuffix(r.Name, ".*"):
		return strings.HasPrefix(pkg, strings.TrimSuffix(r.Name, "*"))
	}
	return r.Name == pkg
}

// String renders r for logs, e.g. "osgi.wiring.package; org.example.api [1.0.0,2.0.0)".
func (r *Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Namespace.String())
	if r.Name != "" {
		b.WriteString("; ")
		b.WriteString(r.Name)
	}
	if !r.Range.IsAny() {
		fmt.Fprintf(&b, " %s", r.Range)
	}
	if r.Filter != nil {
		fmt.Fprintf(&b, " %s", r.Filter)
	}
	if r.Resolution != Mandatory {
		fmt.Fprintf(&b, " (%s)", r.Resolution)
	}
	return b.String()
}
