// Package server wires and runs the HTTP API over the conference caches.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"confetti/config"
	"confetti/internal/adapters/auth"
	"confetti/internal/app"
	deliveryhttp "confetti/internal/delivery/http"
	"confetti/internal/delivery/http/controllers"
	"confetti/internal/domain"
	"confetti/internal/repository"
	"confetti/internal/repository/postgres"
	"confetti/internal/telemetry"
)

const (
	serviceName     = "confetti"
	shutdownTimeout = 10 * time.Second
)

// Server is the assembled API: the handler plus everything it must release.
type Server struct {
	Handler  http.Handler
	Provider *app.Provider
	db       *sql.DB
}

// New builds the API for cfg. A postgres cache provider shares one migrated pool
// across namespaces; bookmark routes are rejected when no JWT secret is configured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	storeCfg := repository.StoreConfig{Provider: cfg.CacheProvider, Dir: cfg.CacheDir}
	var db *sql.DB
	if cfg.CacheProvider == repository.ProviderPostgres {
		var err error
		if db, err = postgres.OpenDB(ctx, cfg.DBUrl); err != nil {
			return nil, err
		}
		storeCfg.DB = db
	}

	var verifier domain.TokenVerifier
	if cfg.JWTSecret != "" {
		v, err := auth.NewJWTVerifier(auth.VerifierConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience})
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, err
		}
		verifier = v
	} else {
		logger.WarnContext(ctx, "JWT_SECRET is not set; bookmark routes will reject every request")
	}

	provider := app.NewProvider(app.Options{
		ServerURL:   cfg.ServerURL,
		Store:       storeCfg,
		MemoryBytes: cfg.MemoryCacheBytes,
		Conferences: cfg.AllowedConferences(),
		MaxEntries:  cfg.MaxCacheEntries,
		HTTPClient:  &http.Client{Timeout: cfg.RequestTimeout},
		Logger:      logger,
	})
	handler := deliveryhttp.NewRouter(logger, deliveryhttp.Controllers{
		Sessions:  controllers.NewSessionsController(logger, provider, cfg.RequestTimeout),
		Bookmarks: controllers.NewBookmarksController(logger, provider, cfg.RequestTimeout),
		Streams:   controllers.NewStreamController(logger, provider, controllers.DefaultKeepAlive),
	}, verifier, cfg.CORSAllowedOrigins)

	return &Server{Handler: handler, Provider: provider, db: db}, nil
}

// Close releases the caches and the shared database pool.
func (s *Server) Close() error {
	err := s.Provider.Close()
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	return err
}

// Run serves the API on cfg.Port until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	srv, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("close caches", "err", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr, "conference", cfg.Conference, "cache", cfg.CacheProvider)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}
