package model

// Kind tags the closed set of namespaces the resolver understands.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindPackage
	KindBundle
	KindHost
	KindExecutionEnvironment
	KindNativeCode
	KindIdentity
	KindGeneric
)

// Well-known namespace names.
const (
	PackageNamespaceName              = "osgi.wiring.package"
	BundleNamespaceName               = "osgi.wiring.bundle"
	HostNamespaceName                 = "osgi.wiring.host"
	ExecutionEnvironmentNamespaceName = "osgi.ee"
	NativeCodeNamespaceName           = "osgi.native"
	IdentityNamespaceName             = "osgi.identity"
)

// Namespace identifies what a capability provides or a requirement needs.
// It is a small comparable value usable as a map key.
type Namespace struct {
	kind Kind
	name string // only set for KindGeneric
}

// The fixed namespaces.
var (
	Package              = Namespace{kind: KindPackage}
	Bundle               = Namespace{kind: KindBundle}
	Host                 = Namespace{kind: KindHost}
	ExecutionEnvironment = Namespace{kind: KindExecutionEnvironment}
	NativeCode           = Namespace{kind: KindNativeCode}
	Identity             = Namespace{kind: KindIdentity}
)

// Generic returns a custom namespace. Names that denote a fixed namespace
// return that namespace instead.
func Generic(name string) Namespace {
	return ParseNamespace(name)
}

// ParseNamespace maps a namespace name to its Namespace.
func ParseNamespace(name string) Namespace {
	switch name {
	case "":
		return Namespace{}
	case PackageNamespaceName:
		return Package
	case BundleNamespaceName:
		return Bundle
	case HostNamespaceName:
		return Host
	case ExecutionEnvironmentNamespaceName:
		return ExecutionEnvironment
	case NativeCodeNamespaceName:
		return NativeCode
	case IdentityNamespaceName:
		return Identity
	}
	return Namespace{kind: KindGeneric, name: name}
}

// Kind returns the namespace tag.
func (n Namespace) Kind() Kind { return n.kind }

// IsValid reports whether n is a usable namespace.
func (n Namespace) IsValid() bool { return n.kind != KindInvalid }

// IsGeneric reports whether n is a custom namespace.
func (n Namespace) IsGeneric() bool { return n.kind == KindGeneric }

// PlatformProvided reports whether requirements in n are satisfied by the
// platform context rather than by wires to other revisions.
func (n Namespace) PlatformProvided() bool {
	return n.kind == KindExecutionEnvironment || n.kind == KindNativeCode
}

// String returns the namespace name.
func (n Namespace) String() string {
	switch n.kind {
	case KindPackage:
		return PackageNamespaceName
	case KindBundle:
		return BundleNamespaceName
	case KindHost:
		return HostNamespaceName
	case KindExecutionEnvironment:
		return ExecutionEnvironmentNamespaceName
	case KindNativeCode:
		return NativeCodeNamespaceName
	case KindIdentity:
		return IdentityNamespaceName
	case KindGeneric:
		return n.name
	}
	return "invalid"
}

// MarshalText implements encoding.TextMarshaler.
func (n Namespace) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Namespace) UnmarshalText(b []byte) error {
	*n = ParseNamespace(string(b))
	return nil
}
