package observability

import (
	"context"
	"sync"
	"testing"
	"time"
)

type countingResolveHooks struct {
	NoopResolveHooks
	mu     sync.Mutex
	starts int
}

func (h *countingResolveHooks) OnResolveStart(context.Context, int) {
	h.mu.Lock()
	h.starts++
	h.mu.Unlock()
}

type testStoreHooks struct{ NoopStoreHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()
	h := Noop()

	h.Resolve.OnLoadStart(ctx, "bundles.toml")
	h.Resolve.OnLoadComplete(ctx, "bundles.toml", 12, time.Second, nil)
	h.Resolve.OnResolveStart(ctx, 12)
	h.Resolve.OnResolveComplete(ctx, ResolveStats{Considered: 12, Resolved: 10}, time.Second, nil)
	h.Resolve.OnDynamicImport(ctx, "org.example.api", true)
	h.Store.OnWrite(ctx, 2048, time.Millisecond, nil)
	h.Store.OnRead(ctx, 2048, false, time.Millisecond, nil)
	h.Cache.OnCacheHit(ctx, "state")
	h.Cache.OnCacheMiss(ctx, "state")
	h.Cache.OnCacheSet(ctx, "state", 1024)
	h.HTTP.OnRequest(ctx, "GET", "/revisions")
	h.HTTP.OnResponse(ctx, "GET", "/revisions", 200, time.Second)
}

func TestDefaultsAreNoop(t *testing.T) {
	Reset()
	if _, ok := Resolve().(NoopResolveHooks); !ok {
		t.Error("Resolve() should default to NoopResolveHooks")
	}
	if _, ok := Store().(NoopStoreHooks); !ok {
		t.Error("Store() should default to NoopStoreHooks")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should default to NoopCacheHooks")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should default to NoopHTTPHooks")
	}
}

func TestInstallKeepsUnsetGroups(t *testing.T) {
	t.Cleanup(Reset)
	resolve := &countingResolveHooks{}
	store := &testStoreHooks{}

	Install(Hooks{Resolve: resolve, Store: store})
	Install(Hooks{Cache: &testCacheHooks{}})

	if Resolve() != resolve || Store() != store {
		t.Error("installing cache hooks replaced the resolve or store hooks")
	}
	if _, ok := Cache().(*testCacheHooks); !ok {
		t.Errorf("Cache() = %T, want *testCacheHooks", Cache())
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Errorf("HTTP() = %T, want the no-op default", HTTP())
	}

	Reset()
	if _, ok := Resolve().(NoopResolveHooks); !ok {
		t.Error("Reset() should restore the no-op hooks")
	}
}

func TestInstallConcurrent(t *testing.T) {
	t.Cleanup(Reset)
	resolve := &countingResolveHooks{}
	httpHooks := &testHTTPHooks{}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); Install(Hooks{Resolve: resolve}) }()
	go func() { defer wg.Done(); Install(Hooks{HTTP: httpHooks}) }()
	wg.Wait()

	if Resolve() != resolve || HTTP() != httpHooks {
		t.Error("concurrent installs of different groups should both stick")
	}
	Resolve().OnResolveStart(context.Background(), 3)
	if resolve.starts != 1 {
		t.Errorf("installed hooks saw %d resolve starts, want 1", resolve.starts)
	}
}
