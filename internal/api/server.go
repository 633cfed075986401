package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/armsd/internal/auth"
	"github.com/mattjoyce/armsd/internal/bandit"
	"github.com/mattjoyce/armsd/internal/catalog"
	"github.com/mattjoyce/armsd/internal/events"
	"github.com/mattjoyce/armsd/internal/feedback"
)

// Engine is the bandit surface the API drives.
type Engine interface {
	Select(ctx context.Context, arms []bandit.Arm, catalogHash string) (bandit.Decision, error)
	Beliefs(ctx context.Context) ([]bandit.Record, error)
	PruneOrphans(ctx context.Context, arms []bandit.Arm) ([]string, error)
	OrphanPolicy() bandit.OrphanPolicy
}

// Recorder applies reward events.
type Recorder interface {
	Record(ctx context.Context, ev feedback.Event) (feedback.Outcome, error)
}

// CatalogSource hands out the catalog to use for a request.
type CatalogSource interface {
	Current() (*catalog.Catalog, error)
}

// Config holds API server settings.
type Config struct {
	Listen string
	// APIKey is the single admin bearer token.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig

	// StoreDriver is reported by /healthz.
	StoreDriver string

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

// Server serves the bandit over HTTP.
type Server struct {
	config    Config
	engine    Engine
	recorder  Recorder
	catalog   CatalogSource
	events    *events.Hub
	logger    *slog.Logger
	startedAt time.Time
}

// New wires a server. With a nil hub nothing is published and /events is
// not mounted.
func New(config Config, engine Engine, recorder Recorder, source CatalogSource, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		engine:    engine,
		recorder:  recorder,
		catalog:   source,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

const (
	readHeaderTimeout = 5 * time.Second
	shutdownGrace     = 5 * time.Second
)

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: /events streams for as long as the client stays.
		IdleTimeout: time.Minute,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Listen, err)
	}
	s.logger.Info("API server starting", "listen", ln.Addr().String())

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		return fmt.Errorf("serve api: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("API server shutting down")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown api: %w", err)
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve api: %w", err)
	}
	return ctx.Err()
}

// route is one authenticated endpoint and the scope it needs.
type route struct {
	method  string
	pattern string
	scope   string
	handler http.HandlerFunc
}

func (s *Server) routes() []route {
	rs := []route{
		{http.MethodGet, "/arms", auth.ScopeArmsRead, s.handleListArms},
		{http.MethodPost, "/arms/sample", auth.ScopeArmsWrite, s.handleSample},
		{http.MethodPost, "/arms/{arm}/reward", auth.ScopeArmsWrite, s.handleReward},
		{http.MethodPost, "/arms/prune", auth.ScopeArmsAdmin, s.handlePrune},
	}
	if s.events != nil {
		rs = append(rs, route{http.MethodGet, "/events", auth.ScopeEventsRO, s.handleEvents})
	}
	return rs
}

// Handler builds the router. Tokens are read from Config at this point.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.accessLog, middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)
	if s.config.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.config.MetricsHandler)
	}

	keys := auth.NewKeyring(s.config.APIKey, s.config.Tokens)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate(keys))
		for _, rt := range s.routes() {
			r.With(s.requireScope(rt.scope)).Method(rt.method, rt.pattern, rt.handler)
		}
	})
	return r
}

// accessLog emits one line per request. The event stream logs at debug since
// it stays open for minutes.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if r.URL.Path == "/events" || r.URL.Path == "/healthz" {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
