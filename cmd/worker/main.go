package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"maidlink/internal/app"
	"maidlink/internal/config"
	"maidlink/internal/logging"
	"maidlink/internal/worker"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if cfg.Workers.Embedded {
		logger.Warn().Msg("workers.embedded is set, the API process already runs the periodic jobs")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("init application")
		return err
	}
	defer application.Close()

	go application.ServeMetrics(ctx)
	go application.StartBackups(ctx)

	if application.Sheets != nil {
		if application.Redis == nil {
			logger.Warn().Msg("Sheets queue is in-process without Redis, only this process's events are mirrored")
		}
		go application.Sheets.Start(ctx)
	}

	scheduler := worker.NewScheduler(&logger, application.Jobs()...)
	scheduler.Start(ctx)
	logger.Info().Int("jobs", len(application.Jobs())).Msg("Worker started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	scheduler.Wait()
	logger.Info().Msg("Worker stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "worker-main").Logger()

	return cfg, logger, closer, nil
}
