// Package server exposes the colony substrate over HTTP for operators and
// external tooling.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/colonyhq/colony/internal/handoff"
	"github.com/colonyhq/colony/internal/knowledge"
	"github.com/colonyhq/colony/internal/retrieval"
	"github.com/colonyhq/colony/pkg/clog"
)

// Server serves the JSON API over chi.
type Server struct {
	store    *knowledge.Store
	queue    *handoff.Queue
	searcher *retrieval.Searcher
	registry *retrieval.Registry
	cache    *retrieval.Cache
	quota    *retrieval.QuotaManager

	httpServer *http.Server
}

// New wires the API against the substrate components.
func New(host, port string, store *knowledge.Store, queue *handoff.Queue, searcher *retrieval.Searcher, registry *retrieval.Registry, cache *retrieval.Cache, quota *retrieval.QuotaManager) *Server {
	s := &Server{
		store:    store,
		queue:    queue,
		searcher: searcher,
		registry: registry,
		cache:    cache,
		quota:    quota,
	}

	r := chi.NewRouter()
	r.Use(clog.SlogChiMiddleware(clog.WithChiFilter(func(r *http.Request) bool {
		return r.URL.Path != "/health"
	})))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/providers", s.handleProviders)
		r.Get("/quota", s.handleQuota)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Post("/cache/cleanup", s.handleCacheCleanup)

		r.Route("/knowledge", func(r chi.Router) {
			r.Post("/discoveries", s.handleAddDiscovery)
			r.Post("/signals", s.handleAddSignal)
			r.Get("/query", s.handleQuery)
			r.Get("/hot", s.handleHot)
			r.Get("/insights", s.handleInsights)
			r.Get("/by-dimension", s.handleByDimension)
			r.Get("/by-type", s.handleByType)
			r.Get("/{id}", s.handleGetRecord)
			r.Get("/{id}/related", s.handleRelated)
			r.Post("/{id}/verify", s.handleVerify)
		})

		r.Route("/handoffs", func(r chi.Router) {
			r.Post("/", s.handleCreateHandoff)
			r.Get("/", s.handleListHandoffs)
			r.Get("/{id}", s.handleGetHandoff)
			r.Delete("/{id}", s.handleCancelHandoff)
		})
	})

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(host, port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
