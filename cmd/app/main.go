package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent-relay/internal/cache"
	"agent-relay/internal/config"
	"agent-relay/internal/httpserver"
	"agent-relay/internal/logging"
	"agent-relay/internal/metrics"
	"agent-relay/internal/repo"
	"agent-relay/internal/store"
	"agent-relay/internal/upstream"
	"agent-relay/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting agent-relay", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var mirror store.Mirror
	if cfg.RedisAddr != "" {
		redisClient := cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed, continuing memory-only", "error", err)
		} else {
			mirror = redisClient
		}
	}

	var repository repo.Repository
	switch {
	case cfg.DatabaseURL != "":
		pg, err := repo.NewPostgres(ctx, cfg.DatabaseURL, "", logger)
		if err != nil {
			return fmt.Errorf("init audit repository: %w", err)
		}
		repository = pg
	case cfg.AuditDBPath != "":
		lite, err := repo.NewSQLite(ctx, cfg.AuditDBPath, logger)
		if err != nil {
			return fmt.Errorf("init audit repository: %w", err)
		}
		repository = lite
	}
	if repository != nil {
		defer repository.Close()
		if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("audit database migrated")
	}

	orders := store.NewOrderStore(mirror, logger)
	sessions := store.NewWhatsAppStore(cfg.WhatsAppSessionTTL, mirror, logger)
	interviews := store.NewInterviewStore(cfg.InterviewTTL, mirror, logger)

	whatsappClient := upstream.NewWhatsAppClient(upstream.WhatsAppConfig{
		BaseURL:          cfg.WhatsAppBaseURL,
		LangchainBaseURL: cfg.LangchainBaseURL,
		Timeout:          cfg.UpstreamTimeout,
	}, logger, metricRegistry)

	backendClient := upstream.NewBackendClient(upstream.BackendConfig{
		BaseURL: cfg.BackendBaseURL,
		Timeout: cfg.UpstreamTimeout,
	}, logger, metricRegistry)

	auditor := httpserver.NewAuditor(repository, logger, metricRegistry)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Orders:     orders,
		Sessions:   sessions,
		Interviews: interviews,
		WhatsApp:   whatsappClient,
		Backend:    backendClient,
		Audit:      auditor,
		Repository: repository,
	}, cfg.PublicBasePath)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
