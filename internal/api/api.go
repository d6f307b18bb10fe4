// Package api exposes the coaching engine over HTTP.
//
// Routes:
//
//	POST  /api/conversation
//	POST  /api/session
//	GET   /api/session/{id}
//	PATCH /api/session/{id}
//	POST  /api/session/{id}/conversion
//	GET   /api/health
//	GET   /api/health/script
//	POST  /api/health/script/reload
//	GET   /api/health/providers
//	GET   /metrics
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/CravingCompanion/internal/flow"
	"github.com/BTreeMap/CravingCompanion/internal/metrics"
	"github.com/BTreeMap/CravingCompanion/internal/models"
	"github.com/BTreeMap/CravingCompanion/internal/provider"
	"github.com/BTreeMap/CravingCompanion/internal/store"
)

// Server configuration defaults.
const (
	DefaultAddr            = ":4000"
	DefaultShutdownTimeout = 5 * time.Second
	maxBodyBytes           = 1 << 20
)

// TurnRunner runs one conversation turn.
type TurnRunner interface {
	TurnWithTrace(ctx context.Context, req models.TurnRequest) (models.TurnResponse, flow.Trace, error)
}

// ScriptSource is the script store as seen by the health routes.
type ScriptSource interface {
	Load(ctx context.Context) (*models.ScriptDocument, error)
	Invalidate()
}

// ProviderStatuser lists registered providers.
type ProviderStatuser interface {
	Status() []provider.Status
}

// Opts holds optional server settings.
type Opts struct {
	Addr            string
	CORSOrigin      string
	DefaultProvider string
	Metrics         *metrics.Metrics
	ShutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithCORSOrigin sets Access-Control-Allow-Origin. Empty disables CORS headers.
func WithCORSOrigin(origin string) Option {
	return func(o *Opts) { o.CORSOrigin = origin }
}

// WithDefaultProvider is reported by the providers health route.
func WithDefaultProvider(key string) Option {
	return func(o *Opts) { o.DefaultProvider = key }
}

// WithMetrics mounts /metrics and is expected to be the orchestrator's recorder too.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// Server holds the handlers' collaborators.
type Server struct {
	turns     TurnRunner
	scripts   ScriptSource
	providers ProviderStatuser
	st        store.Store
	opts      Opts
}

// NewServer creates a Server. st must not be nil; use an in-memory store when no
// database is configured.
func NewServer(turns TurnRunner, scripts ScriptSource, providers ProviderStatuser, st store.Store, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr, CORSOrigin: "*", ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{turns: turns, scripts: scripts, providers: providers, st: st, opts: o}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors(s.opts.CORSOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/conversation", s.conversationHandler)

		r.Route("/session", func(r chi.Router) {
			r.Post("/", s.createSessionHandler)
			r.Get("/{id}", s.getSessionHandler)
			r.Patch("/{id}", s.updateSessionHandler)
			r.Post("/{id}/conversion", s.conversionHandler)
		})

		r.Route("/health", func(r chi.Router) {
			r.Get("/", s.healthHandler)
			r.Get("/script", s.scriptHealthHandler)
			r.Post("/script/reload", s.scriptReloadHandler)
			r.Get("/providers", s.providersHealthHandler)
		})
	})

	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: server error", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down", "timeout", s.opts.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: graceful shutdown failed", "error", err)
			srv.Close()
			return err
		}
		slog.Info("Server.Run: stopped gracefully")
		return nil
	}
}
