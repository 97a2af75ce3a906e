package pushservice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/proxemics-lab/go-push-service/internal/api"
	"github.com/proxemics-lab/go-push-service/internal/pipeline"
	"github.com/proxemics-lab/go-push-service/pkg/dispatch"
	"github.com/proxemics-lab/go-push-service/pkg/metrics"
	"github.com/proxemics-lab/go-push-service/pushservice/config"
)

// Service owns the HTTP surface and the dispatch worker, and shuts them
// down in the right order: the server stops accepting requests first, then
// the worker drains whatever is still queued.
type Service struct {
	server     *http.Server
	dispatcher *pipeline.Dispatcher
	logger     *slog.Logger
}

// New assembles the service around an already-constructed dispatcher and
// token store.
func New(
	cfg *config.Config,
	dispatcher *pipeline.Dispatcher,
	tokenStore dispatch.TokenStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Service, error) {
	if m == nil {
		m = metrics.New()
	}

	sessionAPI := api.NewSessionAPI(cfg.SessionPasskey, tokenStore, dispatcher, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Mount("/", sessionAPI.Routes())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", m.Handler())

	return &Service{
		server: &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: r,
		},
		dispatcher: dispatcher,
		logger:     logger.With("component", "Service"),
	}, nil
}

// Handler exposes the assembled router, mainly for tests.
func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

// Start launches the dispatch worker and then blocks serving HTTP until
// Shutdown is called or the listener fails.
func (s *Service) Start(ctx context.Context) error {
	s.dispatcher.Start(ctx)
	s.logger.Info("Service is now ready.", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server first so no new messages arrive, then
// waits for the dispatch worker to drain.
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down service components...")
	var finalErr error
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	if err := s.dispatcher.Stop(ctx); err != nil {
		s.logger.Error("Dispatch worker shutdown failed.", "err", err)
		finalErr = err
	}
	s.logger.Info("Service shutdown complete.")
	return finalErr
}
