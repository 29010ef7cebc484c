package model

import (
	"fmt"
	"strings"

	"github.com/matzehuels/bundlewire/pkg/version"
)

// Attribute keys with defined meaning.
const (
	AttrVersion            = "version"
	AttrBundleSymbolicName = "bundle-symbolic-name"
	AttrBundleVersion      = "bundle-version"
	AttrType               = "type"

	TypeBundle   = "osgi.bundle"
	TypeFragment = "osgi.fragment"
)

// Capability is something a revision offers.
type Capability struct {
	Namespace  Namespace
	Name       string
	Version    version.Version
	Attributes map[string]any
	Uses       []string // package names the capability's contract exposes
	Mandatory  []string // attributes a requirement must name to match
	Effective  Effective

	revision *Revision
	index    int
	implicit bool
	view     map[string]any
}

// Revision returns the declaring revision. For platform capabilities this is
// the system revision.
func (c *Capability) Revision() *Revision { return c.revision }

// Index returns the position of c in its revision's capability list.
func (c *Capability) Index() int { return c.index }

// Implicit reports whether c was synthesized from the revision identity
// rather than declared.
func (c *Capability) Implicit() bool { return c.implicit }

// Attrs returns the attribute view filters are evaluated against: the
// declared attributes plus the namespace name, version and provider
// identity.
func (c *Capability) Attrs() map[string]any {
	if c.view != nil {
		return c.view
	}
	return c.buildView()
}

func (c *Capability) buildView() map[string]any {
	view := make(map[string]any, len(c.Attributes)+4)
	for k, v := range c.Attributes {
		view[strings.ToLower(k)] = v
	}
	if c.Name != "" {
		view[c.Namespace.String()] = c.Name
	}
	if _, ok := view[AttrVersion]; !ok {
		view[AttrVersion] = c.Version
	}
	if r := c.revision; r != nil && c.Namespace == Package && r.symbolicName != "" {
		view[AttrBundleSymbolicName] = r.symbolicName
		view[AttrBundleVersion] = r.version
	}
	return view
}

// String renders c for logs, e.g. "osgi.wiring.package; org.example.api 1.2.0".
func (c *Capability) String() string {
	s := c.Namespace.String()
	if c.Name != "" {
		s += "; " + c.Name
	}
	if !c.Version.IsEmpty() {
		s += " " + c.Version.String()
	}
	if c.revision != nil {
		s += " from " + c.revision.String()
	}
	return s
}

// Matches reports whether c satisfies r on declaration grounds alone:
// namespace, name, version range, filter, matching attributes and mandatory
// attributes. Platform-provided namespaces never match revision capabilities.
func (r *Requirement) Matches(c *Capability) bool {
	if r.Namespace != c.Namespace || r.Namespace.PlatformProvided() {
		return false
	}
	if c.Effective != EffectiveResolve {
		return false
	}

	switch r.Namespace.Kind() {
	case KindPackage:
		if r.IsDynamic() {
			if !r.MatchesPackageName(c.Name) {
				return false
			}
		} else if r.Name != c.Name {
			return false
		}
	default:
		if r.Name != "" && r.Name != c.Name {
			return false
		}
	}

	if !r.Range.Includes(c.Version) {
		return false
	}
	if !r.Filter.Match(c.Attrs()) {
		return false
	}
	if !r.matchAttributes(c) {
		return false
	}
	return r.coversMandatory(c)
}

func (r *Requirement) matchAttributes(c *Capability) bool {
	for k, want := range r.Attributes {
		switch strings.ToLower(k) {
		case AttrVersion:
			continue
		case AttrBundleSymbolicName:
			if c.revision == nil || fmt.Sprint(want) != c.revision.symbolicName {
				return false
			}
		case AttrBundleVersion:
			if c.revision == nil || !rangeOf(want).Includes(c.revision.version) {
				return false
			}
		default:
			got, ok := lookupFold(c.Attributes, k)
			if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
				return false
			}
		}
	}
	return true
}

func (r *Requirement) coversMandatory(c *Capability) bool {
	if len(c.Mandatory) == 0 {
		return true
	}
	var referenced []string
	if r.Filter != nil {
		referenced = r.Filter.Attributes()
	}
	for _, m := range c.Mandatory {
		if _, ok := lookupFold(r.Attributes, m); ok {
			continue
		}
		found := false
		for _, a := range referenced {
			if strings.EqualFold(a, m) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func rangeOf(v any) version.Range {
	switch x := v.(type) {
	case version.Range:
		return x
	case version.Version:
		return version.AtLeast(x)
	}
	r, err := version.ParseRange(fmt.Sprint(v))
	if err != nil {
		// An unparsable range can never be satisfied.
		max := version.Empty
		return version.Range{Min: version.Empty, MinExclusive: true, Max: &max}
	}
	return r
}

func lookupFold(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// BindSynthetic attaches a platform-provided capability to r. Synthetic
// capabilities are numbered after r's own, so ordinal 0 gets index
// len(r.Capabilities()).
func BindSynthetic(r *Revision, c *Capability, ordinal int) *Capability {
	c.revision = r
	c.index = len(r.capabilities) + ordinal
	c.implicit = true
	c.view = c.buildView()
	return c
}
