// Package observability lets a process watch the engine without tying the
// engine to a metrics backend.
//
// Events fall into four groups: loading and resolving declarations,
// encoding and decoding persisted states, cache lookups and requests served
// by the HTTP API. Each group has a hook interface with a no-op
// implementation. The engine packages call the installed hooks; only main
// (or a test) installs them:
//
//	reg := prometheus.NewRegistry()
//	observability.Install(prom.NewHooks(reg))
//	defer observability.Reset()
//
// and a resolve pass reports itself like this:
//
//	h := observability.Resolve()
//	h.OnResolveStart(ctx, len(subset))
//	...
//	h.OnResolveComplete(ctx, stats, time.Since(start), err)
package observability

import (
	"context"
	"sync/atomic"
	"time"
)

// ResolveStats summarizes one resolve pass.
type ResolveStats struct {
	Considered int // revisions the pass tried to resolve
	Resolved   int // revisions that gained or kept a new wiring
	Unresolved int // revisions that lost their wiring
	Iterations int // fixed-point rounds
	Changes    int // entries in the resulting delta
}

// ResolveHooks observes declaration loading and resolve passes.
type ResolveHooks interface {
	OnLoadStart(ctx context.Context, source string)
	OnLoadComplete(ctx context.Context, source string, revisions int, duration time.Duration, err error)

	OnResolveStart(ctx context.Context, revisions int)
	OnResolveComplete(ctx context.Context, stats ResolveStats, duration time.Duration, err error)

	// OnDynamicImport reports whether a dynamic import found a provider.
	OnDynamicImport(ctx context.Context, pkg string, linked bool)
}

// StoreHooks observes state persistence. size is the encoded blob length.
type StoreHooks interface {
	OnWrite(ctx context.Context, size int, duration time.Duration, err error)

	// OnRead sets stale when the blob was dropped as corrupt or as written
	// by another schema version.
	OnRead(ctx context.Context, size int, stale bool, duration time.Duration, err error)
}

// CacheHooks observes cache lookups. keyType is one of the cache.KeyType
// constants.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// HTTPHooks observes the API. route is the chi route pattern, not the raw
// path, so ids do not multiply label values.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, route string)
	OnResponse(ctx context.Context, method, route string, statusCode int, duration time.Duration)
}

type NoopResolveHooks struct{}

func (NoopResolveHooks) OnLoadStart(context.Context, string)                                   {}
func (NoopResolveHooks) OnLoadComplete(context.Context, string, int, time.Duration, error)     {}
func (NoopResolveHooks) OnResolveStart(context.Context, int)                                   {}
func (NoopResolveHooks) OnResolveComplete(context.Context, ResolveStats, time.Duration, error) {}
func (NoopResolveHooks) OnDynamicImport(context.Context, string, bool)                         {}

type NoopStoreHooks struct{}

func (NoopStoreHooks) OnWrite(context.Context, int, time.Duration, error)      {}
func (NoopStoreHooks) OnRead(context.Context, int, bool, time.Duration, error) {}

type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}

// =============================================================================
// Installed Hooks
// =============================================================================

// Hooks bundles one implementation per event group.
type Hooks struct {
	Resolve ResolveHooks
	Store   StoreHooks
	Cache   CacheHooks
	HTTP    HTTPHooks
}

// Noop returns hooks that ignore every event.
func Noop() Hooks {
	return Hooks{
		Resolve: NoopResolveHooks{},
		Store:   NoopStoreHooks{},
		Cache:   NoopCacheHooks{},
		HTTP:    NoopHTTPHooks{},
	}
}

var installed atomic.Pointer[Hooks]

func init() { Reset() }

// Install replaces the installed hooks. Nil fields of h keep whatever is
// installed for that group.
func Install(h Hooks) {
	for {
		old := installed.Load()
		next := *old
		if h.Resolve != nil {
			next.Resolve = h.Resolve
		}
		if h.Store != nil {
			next.Store = h.Store
		}
		if h.Cache != nil {
			next.Cache = h.Cache
		}
		if h.HTTP != nil {
			next.HTTP = h.HTTP
		}
		if installed.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Reset installs the no-op hooks.
func Reset() {
	h := Noop()
	installed.Store(&h)
}

func Resolve() ResolveHooks { return installed.Load().Resolve }
func Store() StoreHooks     { return installed.Load().Store }
func Cache() CacheHooks     { return installed.Load().Cache }
func HTTP() HTTPHooks       { return installed.Load().HTTP }
