// Package cache provides the byte-level caches persisted states and rendered
// artifacts are stored in.
//
// Backends:
//   - FileCache: one file per key under a directory (CLI default)
//   - BadgerCache: embedded key/value store
//   - RedisCache: shared cache for multi-instance servers
//   - MongoCache: shared cache backed by a MongoDB collection
//   - NullCache: stores nothing
//
// Keys are built by a Keyer so that every caller derives the same key for
// the same state or artifact.
package cache

import (
	"context"
	"time"
)

// Cache is a byte store with optional expiration.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's resources.
	Close() error
}

// Clearer is implemented by caches that can drop every entry at once.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Clear removes every entry from c. Caches that cannot be cleared report
// false.
func Clear(ctx context.Context, c Cache) (bool, error) {
	cl, ok := c.(Clearer)
	if !ok {
		return false, nil
	}
	return true, cl.Clear(ctx)
}

// Key types reported to cache hooks.
const (
	KeyTypeState  = "state"
	KeyTypeRender = "render"
)

// Keyer builds cache keys.
type Keyer interface {
	// StateKey is the key of the persisted state with the given name.
	StateKey(name string) string

	// RenderKey is the key of a rendered wiring graph.
	RenderKey(wiringHash string, opts RenderKeyOpts) string
}

// RenderKeyOpts holds the render options that change the output.
type RenderKeyOpts struct {
	Format    string
	Namespace string
	Detailed  bool
}

// DefaultKeyer is the standard Keyer.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard Keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// StateKey returns "state:<name>".
func (DefaultKeyer) StateKey(name string) string {
	return "state:" + name
}

// RenderKey hashes the wiring hash together with the options.
func (DefaultKeyer) RenderKey(wiringHash string, opts RenderKeyOpts) string {
	return hashKey("render", wiringHash, opts.Format, opts.Namespace, opts.Detailed)
}
