// Package prom implements the observability hooks with Prometheus metrics.
//
// Each constructor registers its collectors with the given registerer, so a
// process calls each of them once:
//
//	reg := prometheus.NewRegistry()
//	observability.Install(prom.NewHooks(reg))
package prom

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matzehuels/bundlewire/pkg/observability"
)

const namespace = "bundlewire"

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// NewHooks registers every collector with reg and returns hooks for all
// four event groups.
func NewHooks(reg prometheus.Registerer) observability.Hooks {
	return observability.Hooks{
		Resolve: NewResolveHooks(reg),
		Store:   NewStoreHooks(reg),
		Cache:   NewCacheHooks(reg),
		HTTP:    NewHTTPHooks(reg),
	}
}

// =============================================================================
// Resolve
// =============================================================================

// ResolveHooks records resolve passes and declaration loads.
type ResolveHooks struct {
	loads          *prometheus.CounterVec
	loadDuration   prometheus.Histogram
	loadRevisions  prometheus.Gauge
	passes         *prometheus.CounterVec
	passDuration   prometheus.Histogram
	iterations     prometheus.Histogram
	resolved       prometheus.Gauge
	changes        prometheus.Counter
	dynamicImports *prometheus.CounterVec
}

// NewResolveHooks registers resolve metrics with reg.
func NewResolveHooks(reg prometheus.Registerer) *ResolveHooks {
	f := promauto.With(reg)
	return &ResolveHooks{
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "loads_total",
			Help: "Declaration loads by result.",
		}, []string{"result"}),
		loadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "load_duration_seconds",
			Help:    "Time spent loading declarations.",
			Buckets: prometheus.DefBuckets,
		}),
		loadRevisions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "loaded_revisions",
			Help: "Revisions in the last successful load.",
		}),
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "resolve_passes_total",
			Help: "Resolve passes by result.",
		}, []string{"result"}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "resolve_duration_seconds",
			Help:    "Resolve pass duration.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		iterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "resolve_iterations",
			Help:    "Fixed-point rounds per resolve pass.",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 100, 1000},
		}),
		resolved: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "resolved_revisions",
			Help: "Revisions wired by the last resolve pass.",
		}),
		changes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "delta_entries_total",
			Help: "Delta entries produced by resolve passes.",
		}),
		dynamicImports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dynamic_imports_total",
			Help: "Dynamic import lookups by outcome.",
		}, []string{"linked"}),
	}
}

func (h *ResolveHooks) OnLoadStart(context.Context, string) {}

func (h *ResolveHooks) OnLoadComplete(_ context.Context, _ string, revisions int, d time.Duration, err error) {
	h.loads.WithLabelValues(result(err)).Inc()
	h.loadDuration.Observe(d.Seconds())
	if err == nil {
		h.loadRevisions.Set(float64(revisions))
	}
}

func (h *ResolveHooks) OnResolveStart(context.Context, int) {}

func (h *ResolveHooks) OnResolveComplete(_ context.Context, stats observability.ResolveStats, d time.Duration, err error) {
	h.passes.WithLabelValues(result(err)).Inc()
	h.passDuration.Observe(d.Seconds())
	if err != nil {
		return
	}
	h.iterations.Observe(float64(stats.Iterations))
	h.resolved.Set(float64(stats.Resolved))
	h.changes.Add(float64(stats.Changes))
}

func (h *ResolveHooks) OnDynamicImport(_ context.Context, _ string, linked bool) {
	h.dynamicImports.WithLabelValues(strconv.FormatBool(linked)).Inc()
}

// =============================================================================
// Store
// =============================================================================

// StoreHooks records state persistence.
type StoreHooks struct {
	writes *prometheus.CounterVec
	reads  *prometheus.CounterVec
	bytes  *prometheus.HistogramVec
}

// NewStoreHooks registers store metrics with reg.
func NewStoreHooks(reg prometheus.Registerer) *StoreHooks {
	f := promauto.With(reg)
	return &StoreHooks{
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "state_writes_total",
			Help: "State writes by result.",
		}, []string{"result"}),
		reads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "state_reads_total",
			Help: "State reads by result (ok, stale or error).",
		}, []string{"result"}),
		bytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "state_size_bytes",
			Help:    "Encoded state size.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"op"}),
	}
}

func (h *StoreHooks) OnWrite(_ context.Context, size int, _ time.Duration, err error) {
	h.writes.WithLabelValues(result(err)).Inc()
	if err == nil {
		h.bytes.WithLabelValues("write").Observe(float64(size))
	}
}

func (h *StoreHooks) OnRead(_ context.Context, size int, stale bool, _ time.Duration, err error) {
	switch {
	case err != nil:
		h.reads.WithLabelValues("error").Inc()
		return
	case stale:
		h.reads.WithLabelValues("stale").Inc()
	default:
		h.reads.WithLabelValues("ok").Inc()
	}
	h.bytes.WithLabelValues("read").Observe(float64(size))
}

// =============================================================================
// Cache
// =============================================================================

// CacheHooks records cache hits and misses.
type CacheHooks struct {
	lookups *prometheus.CounterVec
	sets    *prometheus.CounterVec
}

// NewCacheHooks registers cache metrics with reg.
func NewCacheHooks(reg prometheus.Registerer) *CacheHooks {
	f := promauto.With(reg)
	return &CacheHooks{
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_lookups_total",
			Help: "Cache lookups by key type and outcome.",
		}, []string{"type", "outcome"}),
		sets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_sets_total",
			Help: "Cache writes by key type.",
		}, []string{"type"}),
	}
}

func (h *CacheHooks) OnCacheHit(_ context.Context, keyType string) {
	h.lookups.WithLabelValues(keyType, "hit").Inc()
}

func (h *CacheHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.lookups.WithLabelValues(keyType, "miss").Inc()
}

func (h *CacheHooks) OnCacheSet(_ context.Context, keyType string, _ int) {
	h.sets.WithLabelValues(keyType).Inc()
}

// =============================================================================
// HTTP
// =============================================================================

// HTTPHooks records API requests.
type HTTPHooks struct {
	inflight *prometheus.GaugeVec
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPHooks registers HTTP metrics with reg.
func NewHTTPHooks(reg prometheus.Registerer) *HTTPHooks {
	f := promauto.With(reg)
	return &HTTPHooks{
		inflight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "http_inflight_requests",
			Help: "Requests being served.",
		}, []string{"route"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "Request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (h *HTTPHooks) OnRequest(_ context.Context, _, route string) {
	h.inflight.WithLabelValues(route).Inc()
}

func (h *HTTPHooks) OnResponse(_ context.Context, method, route string, status int, d time.Duration) {
	h.inflight.WithLabelValues(route).Dec()
	h.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	h.duration.WithLabelValues(route).Observe(d.Seconds())
}

var (
	_ observability.ResolveHooks = (*ResolveHooks)(nil)
	_ observability.StoreHooks   = (*StoreHooks)(nil)
	_ observability.CacheHooks   = (*CacheHooks)(nil)
	_ observability.HTTPHooks    = (*HTTPHooks)(nil)
)
