package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heartmarshall/fedbridge/internal/adapter/fetch"
	"github.com/heartmarshall/fedbridge/internal/adapter/postgres"
	"github.com/heartmarshall/fedbridge/internal/adapter/postgres/follower"
	"github.com/heartmarshall/fedbridge/internal/adapter/postgres/magickey"
	"github.com/heartmarshall/fedbridge/internal/adapter/postgres/response"
	"github.com/heartmarshall/fedbridge/internal/config"
	"github.com/heartmarshall/fedbridge/internal/redirect"
	"github.com/heartmarshall/fedbridge/internal/service/inbox"
	"github.com/heartmarshall/fedbridge/internal/service/keystore"
	"github.com/heartmarshall/fedbridge/internal/service/salmon"
	"github.com/heartmarshall/fedbridge/internal/service/webmention"
	"github.com/heartmarshall/fedbridge/internal/transport/middleware"
	"github.com/heartmarshall/fedbridge/internal/transport/rest"
)

// Run is the application entry point. It loads configuration, connects to
// the database, wires the services, and serves HTTP until the context is
// cancelled, then shuts down gracefully.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting fedbridge",
		slog.String("version", BuildVersion()),
		slog.String("base_url", cfg.Bridge.BaseURL),
		slog.String("log_level", cfg.Log.Level),
	)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	wrapper := redirect.NewWrapper(cfg.Bridge.BaseURL)
	fetcher := fetch.New(cfg.Bridge, logger)

	responseRepo := response.New(pool)
	followerRepo := follower.New(pool)
	magicKeyRepo := magickey.New(pool)
	txManager := postgres.NewTxManager(pool)

	keys := keystore.NewService(logger, magicKeyRepo)
	salmonSvc := salmon.NewService(logger, fetcher)
	inboxSvc := inbox.NewService(logger, wrapper, fetcher, responseRepo, followerRepo, keys, txManager)
	webmentionSvc := webmention.NewService(logger, wrapper, fetcher, responseRepo, keys, salmonSvc)

	common := middleware.Chain(
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.Logger(logger),
	)
	limited := middleware.Chain()
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(5 * time.Minute)
		defer limiter.Stop()
		limited = middleware.Chain(limiter.Limit(cfg.RateLimit.Rate, cfg.RateLimit.Window))
	}

	router := rest.NewRouter(rest.Handlers{
		Actor:      rest.NewActorHandler(wrapper, fetcher, keys, logger),
		Inbox:      rest.NewInboxHandler(inboxSvc, logger),
		Webmention: rest.NewWebmentionHandler(webmentionSvc, logger),
		Render:     rest.NewRenderHandler(responseRepo, logger),
		Redirect:   rest.NewRedirectHandler(wrapper),
		Responses:  rest.NewResponsesHandler(responseRepo, logger),
		Health:     rest.NewHealthHandler(pool, Version),
	}, common, limited)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
