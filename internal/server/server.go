// Package server is the composition root: it opens the database, builds the
// service graph, mounts routes and runs the HTTP listener alongside the reply
// dispatcher until the context is canceled.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/comment-autoreply/internal/auth"
	"github.com/sakif/comment-autoreply/internal/config"
	"github.com/sakif/comment-autoreply/internal/dispatch"
	"github.com/sakif/comment-autoreply/internal/graph"
	"github.com/sakif/comment-autoreply/internal/handler"
	"github.com/sakif/comment-autoreply/internal/middleware"
	sqliteRepo "github.com/sakif/comment-autoreply/internal/repository/sqlite"
	"github.com/sakif/comment-autoreply/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth      *handler.AuthHandler
	Dashboard *handler.DashboardHandler
	Webhook   *handler.WebhookHandler
	Health    *handler.HealthHandler
	Tokens    *auth.TokenService
}

type Server struct {
	router     *chi.Mux
	cfg        *config.Config
	logger     *slog.Logger
	db         *sqliteRepo.DB
	dispatcher *dispatch.Dispatcher
}

// New wires the whole application. The returned Server owns the database
// and closes it when Run returns.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	sealer, err := auth.NewSealer(cfg.Vault.Key)
	if err != nil {
		return nil, fmt.Errorf("creating token sealer: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	if dir := filepath.Dir(cfg.DB.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(cfg.DB.Path, sealer)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	users := db.Users()
	credentials := db.Credentials()
	settings := db.Settings()
	replyLogs := db.ReplyLogs()

	graphClient := graph.NewClient(graph.Config{
		BaseURL:           cfg.Instagram.GraphBaseURL,
		Version:           cfg.Instagram.GraphVersion,
		RequestsPerSecond: cfg.Instagram.RequestsPerSecond,
		RequestTimeout:    cfg.Instagram.RequestTimeout,
	}, logger)

	dispatcher := dispatch.New(credentials, settings, replyLogs, graphClient, dispatch.Config{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		BaseBackoff: cfg.Dispatch.BaseBackoff,
		MaxBackoff:  cfg.Dispatch.MaxBackoff,
		Timeout:     cfg.Dispatch.Timeout,
		LaneIdle:    cfg.Dispatch.LaneIdle,
		LaneBuffer:  cfg.Dispatch.LaneBuffer,
	}, logger)

	provider := auth.NewGitHubProvider(cfg.Auth.GitHub.ClientID, cfg.Auth.GitHub.ClientSecret, cfg.Auth.GitHub.CallbackURL)

	h := Handlers{
		Auth: handler.NewAuthHandler(provider, service.NewAuthService(users, tokens, logger), cfg.Auth.SecureCookies, logger),
		Dashboard: handler.NewDashboardHandler(
			service.NewProfileService(users, logger),
			service.NewCredentialService(credentials, graphClient, logger),
			service.NewSettingsService(settings, logger),
			service.NewReplyLogService(replyLogs),
			logger,
		),
		Webhook: handler.NewWebhookHandler(
			service.NewIngestionService(cfg.Instagram.AppSecret, cfg.Instagram.VerifyToken, credentials, dispatcher, logger),
			logger,
		),
		Health: handler.NewHealthHandler(db),
		Tokens: tokens,
	}

	return &Server{
		router:     Routes(h, logger),
		cfg:        cfg,
		logger:     logger,
		db:         db,
		dispatcher: dispatcher,
	}, nil
}

// Routes builds the router.
//
//	GET  /healthz
//	GET  /auth/github/login, /auth/github/callback
//	POST /auth/logout
//	GET  /webhooks/instagram      subscription handshake
//	POST /webhooks/instagram      signed comment notifications
//	/api/*                        session required
func Routes(h Handlers, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", h.Health.HandleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/github/login", h.Auth.HandleGitHubLogin)
		r.Get("/github/callback", h.Auth.HandleGitHubCallback)
		r.Post("/logout", h.Auth.HandleLogout)
	})

	r.Get("/webhooks/instagram", h.Webhook.HandleVerify)
	r.Post("/webhooks/instagram", h.Webhook.HandleEvent)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(h.Tokens))

		r.Get("/profile", h.Dashboard.HandleGetProfile)
		r.Put("/profile", h.Dashboard.HandleSaveProfile)
		r.Get("/credentials", h.Dashboard.HandleGetCredentials)
		r.Post("/credentials/validate", h.Dashboard.HandleValidateCredentials)
		r.Get("/automation", h.Dashboard.HandleGetAutomation)
		r.Put("/automation", h.Dashboard.HandleUpdateAutomation)
		r.Get("/logs", h.Dashboard.HandleListLogs)
	})

	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves HTTP and drives the dispatcher until ctx is canceled or either
// fails. Shutdown order: stop accepting requests, drain in-flight ones, then
// let the dispatcher finish queued replies, then close the database.
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Webhooks may arrive as soon as the listener is up.
	s.dispatcher.Start(gctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DB.Path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		s.dispatcher.Stop()
		if err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
