// Package platform models the environment facts revisions are resolved
// against.
//
// A platform is an ordered list of property dictionaries, each describing
// one environment that is simultaneously valid (for example one entry per
// supported OS/architecture pair). Platform filters and native-code
// requirements are satisfied when any dictionary matches; execution
// environment requirements when any dictionary lists the environment.
//
// Well-known keys:
//
//	osgi.os, osgi.arch, osgi.ws, osgi.nl       native code and platform filters
//	org.osgi.framework.executionenvironment     "JavaSE-17,JavaSE-11"
//	org.osgi.framework.system.packages          "javax.net;version=1.0,org.w3c.dom"
//	osgi.system.aliases                         additional system bundle names
//	osgi.resolverMode                           "development" enables dev mode
//
// Properties are read-only during a resolve pass.
package platform

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/matzehuels/bundlewire/pkg/filter"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/version"
)

// Property keys with defined meaning.
const (
	KeyOS                    = "osgi.os"
	KeyArch                  = "osgi.arch"
	KeyWS                    = "osgi.ws"
	KeyNL                    = "osgi.nl"
	KeyExecutionEnvironments = "org.osgi.framework.executionenvironment"
	KeySystemPackages        = "org.osgi.framework.system.packages"
	KeySystemAliases         = "osgi.system.aliases"
	KeyResolverMode          = "osgi.resolverMode"

	// SystemBundleName always names the system revision.
	SystemBundleName = "system.bundle"

	// ResolverModeDevelopment enables development mode.
	ResolverModeDevelopment = "development"
)

// Dict is one environment description.
type Dict map[string]any

// Properties is the ordered platform context.
type Properties []Dict

// Host returns a single-dictionary platform describing the running process.
func Host() Properties {
	return Properties{{
		KeyOS:   runtime.GOOS,
		KeyArch: runtime.GOARCH,
	}}
}

// DevMode reports whether any dictionary selects development mode.
func (p Properties) DevMode() bool {
	for _, d := range p {
		if s, ok := lookup(d, KeyResolverMode); ok && strings.EqualFold(fmt.Sprint(s), ResolverModeDevelopment) {
			return true
		}
	}
	return false
}

// Match reports whether f matches any dictionary. A nil filter always
// matches; an empty platform matches only a nil filter.
func (p Properties) Match(f *filter.Filter) bool {
	if f == nil {
		return true
	}
	for _, d := range p {
		if f.Match(d) {
			return true
		}
	}
	return false
}

// ExecutionEnvironment is one entry of an execution environment list.
type ExecutionEnvironment struct {
	Full    string // as written, e.g. "JavaSE-1.8"
	Name    string // e.g. "JavaSE"
	Version version.Version
}

// ExecutionEnvironments returns the environments listed by all
// dictionaries, without duplicates, in declaration order.
func (p Properties) ExecutionEnvironments() []ExecutionEnvironment {
	seen := map[string]bool{}
	var out []ExecutionEnvironment
	for _, d := range p {
		v, ok := lookup(d, KeyExecutionEnvironments)
		if !ok {
			continue
		}
		for _, s := range stringList(v) {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, parseEE(s))
		}
	}
	return out
}

func parseEE(s string) ExecutionEnvironment {
	ee := ExecutionEnvironment{Full: s, Name: s}
	if i := strings.LastIndex(s, "-"); i > 0 {
		if v, err := version.Parse(s[i+1:]); err == nil {
			ee.Name, ee.Version = s[:i], v
		}
	}
	return ee
}

// Attrs returns the attribute view used to evaluate filtered execution
// environment requirements.
func (ee ExecutionEnvironment) Attrs() map[string]any {
	return map[string]any{
		model.ExecutionEnvironmentNamespaceName: ee.Name,
		model.AttrVersion:                       ee.Version,
	}
}

// Satisfies reports whether the platform satisfies a platform-provided
// requirement (execution environment or native code). Other requirements
// are never satisfied by the platform.
func (p Properties) Satisfies(req *model.Requirement) bool {
	switch req.Namespace.Kind() {
	case model.KindExecutionEnvironment:
		for _, ee := range p.ExecutionEnvironments() {
			if req.Name != "" && req.Name != ee.Full && !(req.Name == ee.Name && req.Range.Includes(ee.Version)) {
				continue
			}
			if req.Filter.Match(ee.Attrs()) {
				return true
			}
		}
		return false
	case model.KindNativeCode:
		return p.Match(req.Filter)
	}
	return false
}

// SystemNames returns the names the system revision answers to.
func (p Properties) SystemNames() []string {
	names := []string{SystemBundleName}
	for _, d := range p {
		if v, ok := lookup(d, KeySystemAliases); ok {
			for _, s := range stringList(v) {
				if !contains(names, s) {
					names = append(names, s)
				}
			}
		}
	}
	return names
}

// IsSystemName reports whether name identifies the system revision.
func (p Properties) IsSystemName(name string) bool {
	return name != "" && contains(p.SystemNames(), name)
}

// PackageSpec is one exported system package.
type PackageSpec struct {
	Name    string
	Version version.Version
}

// SystemPackages returns the packages the system revision exports on
// behalf of the platform, deduplicated by name and version.
func (p Properties) SystemPackages() []PackageSpec {
	seen := map[string]bool{}
	var out []PackageSpec
	for _, d := range p {
		v, ok := lookup(d, KeySystemPackages)
		if !ok {
			continue
		}
		for _, entry := range stringList(v) {
			spec, ok := parsePackageSpec(entry)
			if !ok {
				continue
			}
			key := spec.Name + "@" + spec.Version.String()
			if !seen[key] {
				seen[key] = true
				out = append(out, spec)
			}
		}
	}
	return out
}

func parsePackageSpec(s string) (PackageSpec, bool) {
	parts := strings.Split(s, ";")
	spec := PackageSpec{Name: strings.TrimSpace(parts[0])}
	if spec.Name == "" {
		return spec, false
	}
	for _, attr := range parts[1:] {
		k, v, ok := strings.Cut(attr, "=")
		if !ok || strings.TrimSpace(k) != model.AttrVersion {
			continue
		}
		ver, err := version.ParseLenient(strings.Trim(strings.TrimSpace(v), `"`))
		if err == nil {
			spec.Version = ver
		}
	}
	return spec, true
}

// SystemCapabilities builds the package capabilities the system revision
// exports for this platform.
func (p Properties) SystemCapabilities(system *model.Revision) []*model.Capability {
	specs := p.SystemPackages()
	out := make([]*model.Capability, len(specs))
	for i, spec := range specs {
		out[i] = model.BindSynthetic(system, &model.Capability{
			Namespace: model.Package,
			Name:      spec.Name,
			Version:   spec.Version,
		}, i)
	}
	return out
}

// Serializable returns a copy holding only values the state store can
// persist, and the sorted keys that were dropped.
func (p Properties) Serializable() (Properties, []string) {
	dropped := map[string]bool{}
	out := make(Properties, len(p))
	for i, d := range p {
		nd := make(Dict, len(d))
		for k, v := range d {
			if sv, ok := serializable(v); ok {
				nd[k] = sv
			} else {
				dropped[k] = true
			}
		}
		out[i] = nd
	}
	keys := make([]string, 0, len(dropped))
	for k := range dropped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return out, keys
}

func serializable(v any) (any, bool) {
	switch x := v.(type) {
	case string, bool, float64, float32:
		return x, true
	case version.Version:
		return x.String(), true
	case []string:
		return append([]string(nil), x...), true
	case []any:
		out := make([]any, 0, len(x))
		for _, e := range x {
			se, ok := serializable(e)
			if !ok {
				return nil, false
			}
			out = append(out, se)
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	}
	return nil, false
}

// Equal reports whether p and o hold the same dictionaries in the same order.
func (p Properties) Equal(o Properties) bool {
	return reflect.DeepEqual(p, o)
}

// Clone returns a shallow copy of each dictionary.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for i, d := range p {
		nd := make(Dict, len(d))
		for k, v := range d {
			nd[k] = v
		}
		out[i] = nd
	}
	return out
}

func lookup(d Dict, key string) (any, bool) {
	if v, ok := d[key]; ok {
		return v, true
	}
	for k, v := range d {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// stringList flattens a comma-separated string or a list value.
func stringList(v any) []string {
	var raw []string
	switch x := v.(type) {
	case string:
		raw = strings.Split(x, ",")
	case []string:
		raw = x
	case []any:
		for _, e := range x {
			raw = append(raw, fmt.Sprint(e))
		}
	default:
		raw = []string{fmt.Sprint(v)}
	}
	out := raw[:0:0]
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
