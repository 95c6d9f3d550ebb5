package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/saturnino-fabrica-de-software/facematch/internal/api"
	"github.com/saturnino-fabrica-de-software/facematch/internal/app"
	"github.com/saturnino-fabrica-de-software/facematch/internal/config"
	"github.com/saturnino-fabrica-de-software/facematch/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting facematch API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
	)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer application.Close()

	logger.Info("face providers registered", slog.Any("types", application.Providers.Types()))
	if _, err := application.Service.ActiveProvider(ctx); err != nil {
		logger.Warn("no active face provider configured; face endpoints return 503")
	}

	go application.Progress.Run(ctx)

	// Event consumer (optional)
	var consumer *queue.Consumer
	if cfg.EventsEnabled() {
		nc, c, err := startConsumer(ctx, cfg, application, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		consumer = c
	}

	// Setup router
	deps := &api.Dependencies{
		Service:          application.Service,
		DB:               application.Pool,
		APIKey:           cfg.APIKey,
		AdminAPIKey:      cfg.AdminAPIKey,
		AdminTokens:      application.Tokens,
		Progress:         application.Progress,
		SearchRateLimit:  cfg.SearchRateLimit,
		SearchRateWindow: cfg.SearchRateWindow,
		BodyLimit:        int(cfg.ImageMaxBytes) * 2,
	}
	if application.Limiter != nil {
		deps.SearchLimiter = application.Limiter
	}
	router := api.NewRouter(logger, deps)
	router.Setup()

	if cfg.AdminAPIKey == "" && !application.Tokens.Enabled() {
		logger.Warn("neither ADMIN_API_KEY nor ADMIN_TOKEN_SECRET set; admin endpoints are disabled")
		if cfg.APIKey == "" {
			logger.Warn("no API_KEY either; face endpoints reject every request")
		}
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		if err := router.Shutdown(); err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
		if consumer != nil {
			consumer.Wait()
		}
	}()

	select {
	case <-shutdownDone:
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")
	return nil
}

func startConsumer(ctx context.Context, cfg *config.Config, application *app.App, logger *slog.Logger) (*nats.Conn, *queue.Consumer, error) {
	nc, js, err := queue.Connect(cfg.NatsURL)
	if err != nil {
		return nil, nil, err
	}

	if err := queue.EnsureStream(ctx, js, logger); err != nil {
		nc.Close()
		return nil, nil, err
	}

	dispatcher := queue.NewDispatcher(application.Service, logger)
	consumer := queue.NewConsumer(js, cfg.NatsConsumer, cfg.EventWorkers, logger)
	err = consumer.Start(ctx, func(ctx context.Context, msg jetstream.Msg) error {
		return dispatcher.Handle(ctx, msg)
	})
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return nc, consumer, nil
}
