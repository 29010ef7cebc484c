package cache

// ScopedKeyer wraps a Keyer with a prefix so that several workspaces can
// share one backend.
//
// Example usage:
//
//	// Per-workspace keys on a shared Redis
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "ws:payments:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// StateKey generates a prefixed state key.
func (k *ScopedKeyer) StateKey(name string) string {
	return k.prefix + k.inner.StateKey(name)
}

// RenderKey generates a prefixed render key.
func (k *ScopedKeyer) RenderKey(wiringHash string, opts RenderKeyOpts) string {
	return k.prefix + k.inner.RenderKey(wiringHash, opts)
}
