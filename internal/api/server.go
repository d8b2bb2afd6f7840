package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/anvil/internal/catalog"
	"github.com/seantiz/anvil/internal/engine"
	"github.com/seantiz/anvil/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server is the admin HTTP surface of one engine.
type Server struct {
	router *chi.Mux
	store  store.Store
	kinds  *catalog.Registry
	engine *engine.Engine
	live   *liveActions
	logger *slog.Logger
	addr   string
}

// NewServer wires the admin routes for eng. Actions are built from kinds and
// looked up in s once they left the live set.
func NewServer(addr string, s store.Store, kinds *catalog.Registry, eng *engine.Engine, logger *slog.Logger) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		store:  s,
		kinds:  kinds,
		engine: eng,
		live:   newLiveActions(),
		logger: logger,
		addr:   addr,
	}

	srv.router.Use(
		middleware.RequestID,
		echoRequestID,
		srv.instrument,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}),
	)
	srv.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		srv.writeError(w, http.StatusNotFound, "no such route")
	})
	srv.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		srv.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/kinds", s.handleListKinds)
		r.Get("/stats", s.handleGetStats)

		r.Route("/pool", func(r chi.Router) {
			r.Get("/", s.handleGetPool)
			r.Put("/", s.handleSetPool)
			r.Post("/wait", s.handleWaitPool)
		})

		r.Route("/actions", func(r chi.Router) {
			r.Post("/", s.handleSubmitAction)
			r.Get("/", s.handleListActions)
			r.Get("/{ref}", s.handleGetAction)
			r.Get("/{ref}/events", s.handleStreamEvents)
		})
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is done and then drains open requests. The engine is
// left running; the caller shuts it down afterwards.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down", "cause", context.Cause(ctx))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// echoRequestID returns the request id assigned by middleware.RequestID to
// the client.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}
