package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"streetwatch/internal/handler"
	"streetwatch/internal/realtime"
	"streetwatch/internal/refresh"
)

// Server is the HTTP server exposing refresh snapshots.
type Server struct {
	mux    *http.ServeMux
	port   int
	logger *slog.Logger
	ready  <-chan struct{} // closed when the first cycle is published
}

// New creates a new Server with all routes registered. alerts may be nil.
func New(port int, store *refresh.Store, demand handler.OnDemand, alerts *realtime.Store, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	h := handler.New(store, demand, alerts, logger)

	s := &Server{mux: mux, port: port, logger: logger, ready: store.Ready()}

	// Snapshots
	mux.HandleFunc("GET /api/routes", h.RouteList)
	mux.HandleFunc("GET /api/routes/{tag}", h.RouteDetail)
	mux.HandleFunc("GET /api/nearby", h.Nearby)

	// On demand
	mux.HandleFunc("GET /api/routes/{tag}/config", h.RouteConfig)
	mux.HandleFunc("GET /api/routes/{tag}/predictions", h.Predictions)
	mux.HandleFunc("GET /api/advisories", h.Advisories)

	// SSE
	mux.HandleFunc("GET /sse/routes/{tag}", h.SSERoute)

	mux.HandleFunc("GET /healthz", h.Health)

	return s
}

// Handler returns the mux wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return withMiddleware(s.mux, s.logger, s.ready)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
