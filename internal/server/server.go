// Package server exposes a State over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/bundlewire/pkg/buildinfo"
	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/render/nodelink"
	"github.com/matzehuels/bundlewire/pkg/state"
	"github.com/matzehuels/bundlewire/pkg/store"
	"github.com/matzehuels/bundlewire/pkg/view"
)

// Options configures a Server.
type Options struct {
	Addr         string        // default ":8080"
	ReadTimeout  time.Duration // default 15s
	WriteTimeout time.Duration // default 60s

	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// AfterResolve runs under the state lock after a successful POST
	// /resolve, typically to persist the state.
	AfterResolve func(context.Context, *state.State) error

	Logger *log.Logger
}

// WithDefaults returns a copy with zero-value fields set to defaults.
func (o Options) WithDefaults() Options {
	if o.Addr == "" {
		o.Addr = ":8080"
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 15 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 60 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// Server serializes HTTP access to one State.
type Server struct {
	mu     sync.Mutex
	st     *state.State
	opts   Options
	router chi.Router
}

// New builds a server for st.
func New(st *state.State, opts Options) *Server {
	s := &Server{st: st, opts: opts.WithDefaults()}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Update runs fn with exclusive access to the state.
func (s *Server) Update(fn func(*state.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "listen on %s", s.opts.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.opts.Logger.Info("serving", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return errors.Wrap(errors.ErrCodeIO, err, "serve")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "shutdown")
	}
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Group(func(r chi.Router) {
		r.Use(instrument)
		r.Get("/healthz", s.health)
		r.Get("/state", s.summary)
		r.Get("/revisions", s.listRevisions)
		r.Get("/revisions/{id}", s.getRevision)
		r.Get("/changes", s.changes)
		r.Post("/resolve", s.resolve)
		r.Get("/wiring.dot", s.wiringDOT)
	})
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body := map[string]any{
		"status":    "ok",
		"revisions": len(s.st.Revisions()),
		"timestamp": s.st.Timestamp(),
		"build":     buildinfo.Get(store.SchemaVersion),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body := view.NewState(s.st)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) listRevisions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revs := s.st.All()
	if r.URL.Query().Get("resolved") == "true" {
		revs = s.st.ResolvedRevisions()
	}
	out := make([]view.Revision, 0, len(revs))
	for _, rev := range revs {
		out = append(out, view.NewRevision(rev, s.st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getRevision(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid revision id %q", chi.URLParam(r, "id")))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, ok := s.st.Revision(id)
	if !ok {
		writeError(w, errors.New(errors.ErrCodeNotFound, "no revision with id %d", id))
		return
	}
	writeJSON(w, http.StatusOK, view.NewDetail(rev, s.st))
}

func (s *Server) changes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body := view.NewDelta(s.st.Changes(), s.st.Timestamp())
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

// resolveRequest is the POST /resolve body. An empty subset resolves every
// unresolved revision; force allows previously resolved revisions to
// become unresolved.
type resolveRequest struct {
	Subset []int64 `json:"subset"`
	Force  bool    `json:"force"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request"))
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var subset []*model.Revision
	for _, id := range req.Subset {
		rev, ok := s.st.Revision(id)
		if !ok {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, "no revision with id %d", id))
			return
		}
		subset = append(subset, rev)
	}
	d, err := s.st.Resolve(r.Context(), subset, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.opts.AfterResolve != nil {
		if err := s.opts.AfterResolve(r.Context(), s.st); err != nil {
			s.opts.Logger.Error("after resolve", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, view.NewDelta(d, s.st.Timestamp()))
}

func (s *Server) wiringDOT(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := nodelink.Options{
		Detailed:       q.Get("detailed") == "true",
		Namespace:      q.Get("namespace"),
		HideUnresolved: q.Get("resolved") == "true",
	}
	s.mu.Lock()
	dot := nodelink.ToDOT(s.st.All(), opts)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(dot))
}
