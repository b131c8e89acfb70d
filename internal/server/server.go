package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lone-cloud/washbell/internal/config"
	"github.com/lone-cloud/washbell/internal/delivery"
	"github.com/lone-cloud/washbell/internal/notification"
	"github.com/lone-cloud/washbell/internal/subscription"
	"github.com/lone-cloud/washbell/internal/util"
)

type Server struct {
	cfg           *config.Config
	version       string
	store         subscription.Store
	subscriptions *subscription.Service
	composer      *notification.Composer
	engine        *delivery.Engine
	logger        *slog.Logger
	router        *chi.Mux
	httpServer    *http.Server
	startTime     time.Time
	shutdownOnce  sync.Once
	shutdownErr   error
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Server, error) {
	catalog := notification.DefaultCatalog()
	if cfg.MessagesFile != "" {
		var err error
		catalog, err = notification.LoadCatalog(cfg.MessagesFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded notification messages", "file", cfg.MessagesFile)
	}

	store, err := subscription.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	transport := delivery.NewWebPushTransport(cfg, logger)
	if err := transport.Ready(); err != nil {
		logger.Warn("Push notifications disabled until VAPID keys are set", "error", err)
	}

	return newServer(cfg, logger, version, store, transport, notification.NewComposer(catalog, cfg.IconPath)), nil
}

func newServer(cfg *config.Config, logger *slog.Logger, version string, store subscription.Store, transport delivery.Transport, composer *notification.Composer) *Server {
	s := &Server{
		cfg:           cfg,
		version:       version,
		store:         store,
		subscriptions: subscription.NewService(store, logger),
		composer:      composer,
		engine:        delivery.NewEngine(store, transport, cfg, logger),
		logger:        logger,
		startTime:     time.Now(),
	}

	s.setupRoutes()
	return s
}

const requestTimeout = 15 * time.Second

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(corsMiddleware(s.cfg.CORSOrigins))
	r.Use(rateLimitMiddleware(s.cfg.RateLimit))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))
	r.Use(securityHeadersMiddleware())
	r.Use(middleware.StripSlashes)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/health", s.handleHealth)
		r.Get("/vapid-public-key", s.handleVAPIDPublicKey)

		r.Get("/subscribe", s.handleSubscriptionCount)
		r.Post("/subscribe", s.handleSubscribe)
		r.Delete("/subscribe", s.handleUnsubscribe)
	})

	// A broadcast runs in waves of DELIVERY_CONCURRENCY, so /notify has no
	// fixed request budget.
	r.With(authMiddleware(s.cfg.APIKey)).Post("/notify", s.handleNotify)

	s.router = r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info(fmt.Sprintf("Washbell running on http://localhost:%d", s.cfg.Port))
	if lanIP := util.GetLANIP(); lanIP != "" {
		s.logger.Debug(fmt.Sprintf("  Network: http://%s:%d", lanIP, s.cfg.Port))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		_ = s.store.Close()
		return err
	}
}

func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("Shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.shutdownErr = fmt.Errorf("failed to shutdown http server: %w", err)
				return
			}
		}

		if err := s.store.Close(); err != nil {
			s.shutdownErr = fmt.Errorf("failed to close store: %w", err)
		}
	})
	return s.shutdownErr
}
