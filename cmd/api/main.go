package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maidlink/internal/api"
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
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("init application")
		return err
	}
	defer application.Close()

	if _, err := application.Services.Catalog.SeedCleaners(ctx, cleanersPath()); err != nil {
		logger.Error().Err(err).Msg("seed cleaners")
		return err
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		operator := api.NewOperatorService(application.Services.Bookings, application.Services.Onboarding, &logger)
		grpcServer, err = api.NewGRPCServer(cfg.API, operator, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}
	httpServer := api.NewHTTPServer(cfg.API, application.Services, application.Users, cfg.Uploads.MaxBytes, &logger)

	go application.ServeMetrics(ctx)

	// Without Redis the sync queue is in-process, so this process drains it.
	if application.Sheets != nil && application.Redis == nil {
		go application.Sheets.Start(ctx)
	}

	var scheduler *worker.Scheduler
	if cfg.Workers.Embedded {
		scheduler = worker.NewScheduler(&logger, application.Jobs()...)
		scheduler.Start(ctx)
		go application.StartBackups(ctx)
	}

	err = startServers(ctx, grpcServer, httpServer, cfg, &logger)
	if scheduler != nil {
		scheduler.Wait()
	}
	return err
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
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func cleanersPath() string {
	if p := os.Getenv("CLEANERS_PATH"); p != "" {
		return p
	}
	return "configs/cleaners.yaml"
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	if cfg.API.HTTP.Enabled {
		go func() {
			if err := httpServer.Start(); err != nil {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	logger.Info().
		Bool("grpc", grpcServer != nil).
		Int("grpc_port", cfg.API.GRPC.Port).
		Bool("http", cfg.API.HTTP.Enabled).
		Int("http_port", cfg.API.HTTP.Port).
		Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return runErr
}
