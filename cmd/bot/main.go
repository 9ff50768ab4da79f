package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"maidlink/internal/app"
	"maidlink/internal/bot"
	"maidlink/internal/config"
	"maidlink/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("init application")
		return err
	}
	defer application.Close()

	if application.Telegram == nil {
		return errors.New("operator bot needs telegram.bot_token and telegram.operator_chat_ids")
	}

	go application.ServeMetrics(ctx)

	operatorBot := bot.NewBot(
		bot.NewAPIWrapper(application.Telegram),
		cfg.Telegram,
		application.Services.Bookings,
		application.Services.Onboarding,
		application.State,
		bot.NewMetrics(prometheus.DefaultRegisterer),
		&logger,
	)

	go func() {
		<-ctx.Done()
		operatorBot.Stop()
	}()

	logger.Info().Msg("Operator bot started")
	operatorBot.Start(ctx)
	logger.Info().Msg("Operator bot stopped")
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
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}
