package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/filter"
	"github.com/matzehuels/bundlewire/pkg/version"
)

// Lifecycle is the ownership state of a revision.
type Lifecycle uint8

const (
	// Released revisions belong to no State and may be added to one.
	Released Lifecycle = iota
	// Owned revisions are live members of exactly one State.
	Owned
	// RemovalPending revisions were removed or replaced but still have
	// wires pointing at them; they stay reachable until a resolve severs
	// those wires.
	RemovalPending
)

func (l Lifecycle) String() string {
	switch l {
	case Owned:
		return "owned"
	case RemovalPending:
		return "removal-pending"
	}
	return "released"
}

// Declaration is the parsed input a Revision is built from.
type Declaration struct {
	ID             int64
	SymbolicName   string
	Version        version.Version
	Location       string
	Singleton      bool
	Attributes     map[string]any // extra attributes on the identity, bundle and host capabilities
	Host           *Requirement   // fragment-host requirement; nil for non-fragments
	PlatformFilter *filter.Filter
	Requirements   []*Requirement
	Capabilities   []*Capability
}

// Revision is one installed version of a bundle. Identity and declarations
// are immutable after construction; resolution status and wiring are set by
// the owning State.
type Revision struct {
	id             int64
	symbolicName   string
	version        version.Version
	location       string
	singleton      bool
	attributes     map[string]any
	host           *Requirement
	platformFilter *filter.Filter
	requirements   []*Requirement
	capabilities   []*Capability
	declared       int // capabilities[:declared] were declared, the rest are implicit

	lifecycle Lifecycle
	owner     any
	wiring    *Wiring
}

// NewRevision validates d and builds a Revision. The Requirement and
// Capability values in d become part of the revision and must not be shared
// with another declaration.
func NewRevision(d Declaration) (*Revision, error) {
	if d.ID < 0 {
		return nil, errors.New(errors.ErrCodeInvalidDeclaration, "revision id must be non-negative, got %d", d.ID)
	}
	if d.SymbolicName != "" {
		if err := errors.ValidateSymbolicName(d.SymbolicName); err != nil {
			return nil, err
		}
	}

	r := &Revision{
		id:             d.ID,
		symbolicName:   d.SymbolicName,
		version:        d.Version,
		location:       d.Location,
		singleton:      d.Singleton,
		attributes:     d.Attributes,
		platformFilter: d.PlatformFilter,
	}

	if d.Host != nil {
		if d.SymbolicName == "" {
			return nil, errors.New(errors.ErrCodeInvalidDeclaration, "fragment %d has no symbolic name", d.ID)
		}
		if !d.Host.Namespace.IsValid() {
			d.Host.Namespace = Host
		}
		if d.Host.Namespace != Host || d.Host.Name == "" {
			return nil, errors.New(errors.ErrCodeInvalidDeclaration, "fragment %s: host requirement must name a host", r)
		}
		if err := claimRequirement(r, d.Host, -1); err != nil {
			return nil, err
		}
		r.host = d.Host
	}

	for i, req := range d.Requirements {
		if err := validateRequirement(r, req); err != nil {
			return nil, err
		}
		if err := claimRequirement(r, req, i); err != nil {
			return nil, err
		}
		r.requirements = append(r.requirements, req)
	}

	for _, c := range d.Capabilities {
		if err := validateCapability(r, c); err != nil {
			return nil, err
		}
		if c.revision != nil {
			return nil, errors.New(errors.ErrCodeInvalidDeclaration, "%s: capability %s already belongs to %s", r, c.Namespace, c.revision)
		}
		c.revision = r
		c.index = len(r.capabilities)
		r.capabilities = append(r.capabilities, c)
	}
	r.declared = len(r.capabilities)
	r.addImplicitCapabilities()

	for _, c := range r.capabilities {
		c.view = c.buildView()
	}
	return r, nil
}

// MustNewRevision is like NewRevision but panics on error.
func MustNewRevision(d Declaration) *Revision {
	r, err := NewRevision(d)
	if err != nil {
		panic(err)
	}
	return r
}

func claimRequirement(r *Revision, req *Requirement, index int) error {
	if req.revision != nil {
		return errors.New(errors.ErrCodeInvalidDeclaration, "%s: requirement %s already belongs to %s", r, req, req.revision)
	}
	req.revision = r
	req.index = index
	return nil
}

func validateRequirement(r *Revision, req *Requirement) error {
	if req == nil {
		return errors.New(errors.ErrCodeInvalidDeclaration, "%s: nil requirement", r)
	}
	switch req.Namespace.Kind() {
	case KindInvalid:
		return errors.New(errors.ErrCodeInvalidDeclaration, "%s: requirement without namespace", r)
	case KindHost:
		return errors.New(errors.ErrCodeInvalidDeclaration, "%s: host requirements are declared through Declaration.Host", r)
	case KindPackage:
		if req.IsDynamic() {
			if err := errors.ValidatePackagePattern(req.Name); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidDeclaration, err, "%s: dynamic import", r)
			}
			return nil
		}
		if err := errors.ValidatePackageName(req.Name); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidDeclaration, err, "%s: import", r)
		}
	case KindBundle:
		if req.Name == "" {
			return errors.New(errors.ErrCodeInvalidDeclaration, "%s: bundle requirement without symbolic name", r)
		}
	case KindExecutionEnvironment:
		if req.Name == "" && req.Filter == nil {
			return errors.New(errors.ErrCodeInvalidDeclaration, "%s: execution environment requirement needs a name or filter", r)
		}
	case KindNativeCode:
		if req.Filter == nil {
			return errors.New(errors.ErrCodeInvalidDeclaration, "%s: native code requirement needs a filter", r)
		}
	}
	if req.IsDynamic() && req.Namespace != Package {
		return errors.New(errors.ErrCodeInvalidDeclaration, "%s: only package requirements can be dynamic", r)
	}
	return nil
}

func validateCapability(r *Revision, c *Capability) error {
	if c == nil {
		return errors.New(errors.ErrCodeInvalidDeclaration, "%s: nil capability", r)
	}
	switch c.Namespace.Kind() {
	case KindInvalid:
		return errors.New(errors.ErrCodeInvalidDeclaration, "%s: capability without namespace", r)
	case KindIdentity:
		return errors.New(errors.ErrCodeInvalidDeclaration, "%s: identity capabilities are reserved and cannot be declared", r)
	case KindBundle, KindHost:
		return errors.New(errors.ErrCodeInvalidDeclaration, "%s: %s capabilities are derived from the symbolic name", r, c.Namespace)
	case KindExecutionEnvironment, KindNativeCode:
		return errors.New(errors.ErrCodeInvalidDeclaration, "%s: %s capabilities are provided by the platform", r, c.Namespace)
	case KindPackage:
		if err := errors.ValidatePackageName(c.Name); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidDeclaration, err, "%s: export", r)
		}
	}
	return nil
}

func (r *Revision) addImplicitCapabilities() {
	if r.symbolicName == "" {
		return
	}
	typ := TypeBundle
	if r.IsFragment() {
		typ = TypeFragment
	}
	identityAttrs := map[string]any{AttrType: typ}
	for k, v := range r.attributes {
		identityAttrs[k] = v
	}
	r.addImplicit(&Capability{Namespace: Identity, Name: r.symbolicName, Version: r.version, Attributes: identityAttrs})
	if r.IsFragment() {
		return
	}
	r.addImplicit(&Capability{Namespace: Bundle, Name: r.symbolicName, Version: r.version, Attributes: r.attributes})
	r.addImplicit(&Capability{Namespace: Host, Name: r.symbolicName, Version: r.version, Attributes: r.attributes})
}

func (r *Revision) addImplicit(c *Capability) {
	c.revision = r
	c.index = len(r.capabilities)
	c.implicit = true
	r.capabilities = append(r.capabilities, c)
}

// ID returns the numeric identity. An updated revision keeps the id of the
// instance it replaces.
func (r *Revision) ID() int64 { return r.id }

// SymbolicName returns the symbolic name, empty for legacy revisions.
func (r *Revision) SymbolicName() string { return r.symbolicName }

// Version returns the revision version.
func (r *Revision) Version() version.Version { return r.version }

// Location returns the install location.
func (r *Revision) Location() string { return r.location }

// IsSingleton reports whether at most one revision with this symbolic name
// may be resolved.
func (r *Revision) IsSingleton() bool { return r.singleton }

// Attributes returns the extra identity attributes.
func (r *Revision) Attributes() map[string]any { return r.attributes }

// Host returns the fragment-host requirement, nil for non-fragments.
func (r *Revision) Host() *Requirement { return r.host }

// IsFragment reports whether r attaches to a host instead of resolving alone.
func (r *Revision) IsFragment() bool { return r.host != nil }

// PlatformFilter returns the filter the platform must match, or nil.
func (r *Revision) PlatformFilter() *filter.Filter { return r.platformFilter }

// Requirements returns the declared requirements, excluding the host requirement.
func (r *Revision) Requirements() []*Requirement { return r.requirements }

// Capabilities returns declared and implicit capabilities.
func (r *Revision) Capabilities() []*Capability { return r.capabilities }

// DeclaredCapabilities returns only the declared capabilities.
func (r *Revision) DeclaredCapabilities() []*Capability { return r.capabilities[:r.declared] }

// CapabilitiesOf returns the capabilities in namespace ns.
func (r *Revision) CapabilitiesOf(ns Namespace) []*Capability {
	var out []*Capability
	for _, c := range r.capabilities {
		if c.Namespace == ns {
			out = append(out, c)
		}
	}
	return out
}

// RequirementsOf returns the declared requirements in namespace ns.
func (r *Revision) RequirementsOf(ns Namespace) []*Requirement {
	var out []*Requirement
	for _, req := range r.requirements {
		if req.Namespace == ns {
			out = append(out, req)
		}
	}
	return out
}

// IdentityCapability returns the implicit identity capability, or nil for
// revisions without a symbolic name.
func (r *Revision) IdentityCapability() *Capability {
	for _, c := range r.capabilities[r.declared:] {
		if c.Namespace == Identity {
			return c
		}
	}
	return nil
}

// IsResolved reports whether r currently has a wiring.
func (r *Revision) IsResolved() bool { return r.wiring != nil }

// Wiring returns the current wiring, nil when unresolved.
func (r *Revision) Wiring() *Wiring { return r.wiring }

// SetWiring records the outcome of a resolve pass; nil marks r unresolved.
func (r *Revision) SetWiring(w *Wiring) { r.wiring = w }

// Lifecycle returns the ownership state.
func (r *Revision) Lifecycle() Lifecycle { return r.lifecycle }

// Owner returns the State token that owns r, or nil when released.
func (r *Revision) Owner() any { return r.owner }

// Claim transfers a released revision to owner.
func (r *Revision) Claim(owner any) error {
	if r.lifecycle != Released {
		if r.owner == owner {
			return errors.New(errors.ErrCodeOwnership, "revision %s is already part of this state", r)
		}
		return errors.New(errors.ErrCodeOwnership, "revision %s is %s by another state", r, r.lifecycle)
	}
	r.owner = owner
	r.lifecycle = Owned
	return nil
}

// CheckOwner fails unless r is live or pending in owner.
func (r *Revision) CheckOwner(owner any) error {
	if r.lifecycle == Released || r.owner != owner {
		return errors.New(errors.ErrCodeOwnership, "revision %s does not belong to this state", r)
	}
	return nil
}

// MarkRemovalPending keeps r reachable until its remaining wires are severed.
func (r *Revision) MarkRemovalPending() { r.lifecycle = RemovalPending }

// Release detaches r from its owner and drops its wiring.
func (r *Revision) Release() {
	r.lifecycle = Released
	r.owner = nil
	r.wiring = nil
}

// String returns "name_version" like the bundle file naming convention, or
// "#id" for revisions without a symbolic name.
func (r *Revision) String() string {
	if r.symbolicName == "" {
		return fmt.Sprintf("#%d", r.id)
	}
	return r.symbolicName + "_" + r.version.String()
}

// Fingerprint returns a stable digest of the declaration. Two revisions with
// the same fingerprint declare the same things.
func (r *Revision) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%s|%s|%t|%s|", r.id, r.symbolicName, r.version, r.location, r.singleton, canonicalAttrs(r.attributes))
	if r.platformFilter != nil {
		b.WriteString(r.platformFilter.String())
	}
	if r.host != nil {
		b.WriteString("|host:")
		writeRequirement(&b, r.host)
	}
	for _, req := range r.requirements {
		b.WriteString("|req:")
		writeRequirement(&b, req)
	}
	for _, c := range r.DeclaredCapabilities() {
		fmt.Fprintf(&b, "|cap:%s;%s;%s;%s;uses=%s;mandatory=%s;%s",
			c.Namespace, c.Name, c.Version, canonicalAttrs(c.Attributes),
			strings.Join(c.Uses, ","), strings.Join(c.Mandatory, ","), c.Effective)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeRequirement(b *strings.Builder, req *Requirement) {
	fmt.Fprintf(b, "%s;%s;%s;%s;%s;%s;%s;%s", req.Namespace, req.Name, req.Range, canonicalAttrs(req.Attributes),
		req.Resolution, req.Cardinality, req.Effective, req.Visibility)
	if req.Filter != nil {
		b.WriteString(";" + req.Filter.String())
	}
}

func canonicalAttrs(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
