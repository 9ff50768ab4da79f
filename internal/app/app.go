package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"maidlink/internal/api"
	"maidlink/internal/auth"
	"maidlink/internal/config"
	"maidlink/internal/database"
	"maidlink/internal/domain"
	"maidlink/internal/events"
	"maidlink/internal/gateway"
	"maidlink/internal/google"
	"maidlink/internal/metrics"
	"maidlink/internal/models"
	"maidlink/internal/mongostore"
	"maidlink/internal/repository"
	"maidlink/internal/service"
	"maidlink/internal/storage"
	"maidlink/internal/verification"
	"maidlink/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App owns every store and adapter handle of one process.
type App struct {
	Config *config.Config
	Logger *zerolog.Logger

	Ledger   domain.Ledger
	SQLite   *database.DB
	Redis    *redis.Client
	State    domain.StateRepository
	Bus      *events.EventBus
	Catalog  *models.Catalog
	Gateway  domain.PaymentGateway
	Verifier domain.VerificationProvider
	Files    domain.FileStore
	Users    *auth.Manager

	// Telegram is nil when operator chats are not configured.
	Telegram *tgbotapi.BotAPI
	// Sheets is nil when the spreadsheet mirror is not configured.
	Sheets *worker.SheetsWorker

	Services api.Services

	closers []func() error
}

// New builds the application from configuration. Optional collaborators
// (Redis, Telegram, Google Sheets) are skipped with a warning when unreachable.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Bus:     events.NewEventBus(),
		Catalog: models.NewCatalog(cfg.Catalog.Services, cfg.Catalog.ServiceAreas, cfg.Payments.Currency),
		Users:   auth.NewManager(cfg.Auth),
	}

	steps := []func(context.Context) error{
		a.initLedger,
		a.initState,
		a.initGateway,
		a.initVerifier,
		a.initFiles,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	a.Services = api.Services{
		Catalog:  service.NewCatalogService(a.Ledger, a.Catalog, logger),
		Bookings: service.NewBookingService(a.Ledger, a.Catalog, a.Bus, logger),
		Payments: service.NewPaymentService(a.Ledger, a.Gateway, a.Bus, service.PaymentOptions{
			ProductLabel: cfg.Payments.ProductLabel,
			SweepAge:     cfg.Payments.SweepAge,
			SweepBatch:   cfg.Payments.SweepBatch,
		}, logger),
		Onboarding: service.NewOnboardingService(a.Ledger, a.Verifier, a.Files, a.State, a.Catalog, a.Bus, service.UploadLimits{
			MaxBytes:   cfg.Uploads.MaxBytes,
			RateLimit:  cfg.Uploads.RateLimit,
			RateWindow: cfg.Uploads.RateWindow,
		}, logger),
		Ratings: service.NewRatingService(a.Ledger, a.Bus, logger),
	}

	a.initNotifier()
	a.initSheets(ctx)
	return a, nil
}

func (a *App) initLedger(ctx context.Context) error {
	switch a.Config.Database.Driver {
	case config.DriverMongo:
		store, err := mongostore.New(ctx, a.Config.Database.Mongo, a.Logger)
		if err != nil {
			return fmt.Errorf("init mongo ledger: %w", err)
		}
		a.Ledger = store
		a.closers = append(a.closers, store.Close)
	default:
		db, err := database.NewDB(a.Config.Database.Path, a.Logger)
		if err != nil {
			return fmt.Errorf("init sqlite ledger: %w", err)
		}
		a.Ledger, a.SQLite = db, db
		a.closers = append(a.closers, db.Close)
	}
	return nil
}

func (a *App) initState(ctx context.Context) error {
	memory := repository.NewMemoryStateRepository()
	a.State = memory
	if a.Config.Redis.Address == "" {
		a.Logger.Warn().Msg("Redis not configured, using in-process state")
		return nil
	}

	client := repository.NewRedisClient(a.Config.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		a.Logger.Warn().Err(err).Msg("Redis connection failed, continuing without redis")
		_ = repository.Close(client)
		return nil
	}
	a.Logger.Info().Str("addr", a.Config.Redis.Address).Msg("Redis connected")
	a.Redis = client
	a.closers = append(a.closers, func() error { return repository.Close(client) })
	a.State = repository.NewFailoverStateRepository(
		repository.NewRedisStateRepository(client, a.Config.Redis.CheckTTL), memory, a.Logger)
	return nil
}

func (a *App) initGateway(context.Context) error {
	p := a.Config.Payments
	var gw domain.PaymentGateway
	switch p.Provider {
	case config.PaymentProviderStripe:
		gw = gateway.NewStripe(p.Stripe, p.WebhookSkew, a.Logger)
	case config.PaymentProviderSandbox:
		gw = gateway.NewSandbox(p.Sandbox, p.WebhookSkew, a.Logger)
	default:
		return fmt.Errorf("unknown payment provider %q", p.Provider)
	}
	a.Gateway = gateway.WithRetry(gw, retryPolicy(p.StatusRetry), a.Logger)
	return nil
}

func (a *App) initVerifier(context.Context) error {
	v := a.Config.Verification
	switch v.Provider {
	case config.VerificationCheckr:
		a.Verifier = verification.NewCheckr(v.Checkr, a.Logger)
	case config.VerificationSimulated:
		a.Verifier = verification.NewSimulated(a.State, v.Simulated, a.Logger)
	default:
		return fmt.Errorf("unknown verification provider %q", v.Provider)
	}
	return nil
}

func (a *App) initFiles(ctx context.Context) error {
	s := a.Config.Storage
	switch s.Provider {
	case config.StorageMinio:
		client, err := storage.NewMinioClient(s.Minio)
		if err != nil {
			return fmt.Errorf("init minio client: %w", err)
		}
		store, err := storage.NewMinioStore(ctx, client, s.Minio.Bucket, a.Logger)
		if err != nil {
			return fmt.Errorf("init minio store: %w", err)
		}
		a.Files = store
	default:
		store, err := storage.NewLocalStore(s.Local.Path, a.Logger)
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		a.Files = store
	}
	return nil
}

func (a *App) initNotifier() {
	tg := a.Config.Telegram
	if tg.BotToken == "" || len(tg.OperatorChatIDs) == 0 {
		a.Logger.Info().Msg("Telegram notifications disabled")
		return
	}
	bot, err := tgbotapi.NewBotAPI(tg.BotToken)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Telegram init failed, continuing without operator alerts")
		return
	}
	bot.Debug = tg.Debug
	a.Logger.Info().Str("bot", bot.Self.UserName).Int("chats", len(tg.OperatorChatIDs)).Msg("Telegram notifier ready")
	a.Telegram = bot
	service.NewOperatorNotifier(bot, tg.OperatorChatIDs, a.Logger).Subscribe(a.Bus)
}

func (a *App) initSheets(ctx context.Context) {
	g := a.Config.Google
	if g.CredentialsFile == "" || g.BookingSpreadSheetID == "" {
		return
	}
	sheets, err := google.NewSheetsService(ctx, g.CredentialsFile, g.BookingSpreadSheetID)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Google Sheets init failed, continuing without sheets")
		return
	}
	if err := sheets.WarmUpCache(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Google Sheets cache warm-up failed")
	}
	a.Logger.Info().Msg("Google Sheets connected")
	a.Sheets = worker.NewSheetsWorker(a.Ledger, sheets, a.Redis, retryPolicy(a.Config.Workers.SheetsRetry), a.Logger)
	service.SubscribeBookingSync(a.Bus, a.Sheets, a.Logger)
}

// Jobs are the periodic tasks run by the worker process.
func (a *App) Jobs() []worker.Job {
	w := a.Config.Workers
	jobs := []worker.Job{
		{
			Name:     "background-check-poller",
			Interval: w.BackgroundCheckInterval,
			Run: func(ctx context.Context) error {
				_, err := a.Services.Onboarding.PollPendingChecks(ctx)
				return err
			},
		},
		{
			Name:     "payment-sweeper",
			Interval: w.PaymentSweepInterval,
			Run: func(ctx context.Context) error {
				_, err := a.Services.Payments.SweepStale(ctx)
				return err
			},
		},
	}
	if a.Sheets != nil {
		jobs = append(jobs, worker.Job{Name: "sheets-resync", Interval: w.SheetsResyncInterval, Run: a.Sheets.Resync})
	}
	return jobs
}

// StartBackups runs the SQLite backup loop until ctx is done. Mongo deployments
// rely on the database's own tooling.
func (a *App) StartBackups(ctx context.Context) {
	if a.SQLite == nil || !a.Config.Backup.Enabled {
		return
	}
	database.NewBackupService(a.SQLite, a.Config.Backup, a.Logger).Start(ctx)
}

// ServeMetrics exposes /metrics on its own listener until ctx is done.
func (a *App) ServeMetrics(ctx context.Context) {
	if !a.Config.Monitoring.PrometheusEnabled {
		return
	}
	metrics.Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Monitoring.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Error().Err(err).Msg("metrics server error")
	}
}

// Close releases handles in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func retryPolicy(cfg config.RetryConfig) worker.RetryPolicy {
	return worker.RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
		Jitter:        cfg.Jitter,
	}
}
