package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papemosque/community-api/internal/api"
	"github.com/papemosque/community-api/internal/engine"
	"github.com/papemosque/community-api/internal/mailer"
	"github.com/papemosque/community-api/internal/store"
	ws "github.com/papemosque/community-api/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply migrations and start the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	applied, err := pgStore.RunMigrations(ctx, cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database migrations applied", zap.Int("files", len(applied)))

	redisClient, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	sender, err := mailer.NewSender(cfg.Email)
	if err != nil {
		return fmt.Errorf("configuring email provider: %w", err)
	}
	submitter := mailer.NewSubmitter(sender, mailer.SubmitterOptions{
		Rate:          cfg.Dispatch.SendRate,
		Burst:         cfg.Dispatch.SendBurst,
		MaxRetries:    cfg.Dispatch.MaxRetries,
		RetryInterval: cfg.Dispatch.RetryInterval,
	}, logger.Named("mailer"))

	breaker := engine.NewCircuitBreaker(redisClient, cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown, logger.Named("breaker"))
	limiter := engine.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, logger.Named("ratelimit"))

	hub := ws.NewHub(cfg.SiteURL, logger.Named("ws"))
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	dispatcher := engine.NewDispatcher(engine.DispatcherDeps{
		Recipients: pgStore,
		Submitter:  submitter,
		Guard:      breaker,
		EmailLogs:  pgStore,
		Progress:   hub,
	}, engine.DispatcherConfig{
		From:           cfg.Email.From,
		ReplyTo:        cfg.Email.ReplyTo,
		SiteURL:        cfg.SiteURL,
		MaxConcurrency: cfg.Dispatch.MaxConcurrency,
	}, logger.Named("dispatch"))

	router := api.NewRouter(api.Deps{
		Subscribers: pgStore,
		EmailLogs:   pgStore,
		Content:     pgStore,
		Dispatcher:  dispatcher,
		Breaker:     breaker,
		Provider:    sender.Name(),
		Limiter:     limiter,
		Feed:        hub,
		DB:          pgStore,
		Logger:      logger.Named("http"),
	}, api.RouterConfig{
		SiteURL:           cfg.SiteURL,
		AllowedOrigin:     cfg.SiteURL,
		AdminJWTSecret:    cfg.AdminJWTSecret,
		Version:           version,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// bulk sends hold the request open until every recipient settles
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("email_provider", sender.Name()),
			zap.String("version", version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
