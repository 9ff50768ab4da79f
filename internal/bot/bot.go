package bot

import (
	"context"
	"time"

	"maidlink/internal/config"
	"maidlink/internal/domain"
	"maidlink/internal/models"
	"maidlink/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingOps is what the bot needs from the booking lifecycle.
type BookingOps interface {
	ListBookings(ctx context.Context, actor service.Actor, status models.BookingStatus, limit int) ([]*models.Booking, error)
	RequestCleanerAcceptance(ctx context.Context, bookingID string) (*models.Booking, error)
}

// OnboardingOps is what the bot needs from cleaner onboarding.
type OnboardingOps interface {
	ListApplications(ctx context.Context, status models.ApplicationStatus, limit int) ([]*models.CleanerApplication, error)
	GetApplication(ctx context.Context, applicationID string) (*models.CleanerApplication, error)
	InitiateBackgroundCheck(ctx context.Context, applicationID string) (*service.CheckView, error)
	PollBackgroundCheck(ctx context.Context, applicationID string) (*service.CheckView, error)
	SuspendApplication(ctx context.Context, applicationID string) (*models.CleanerApplication, error)
}

// operatorActor is who the bot acts as when it reads the ledger.
var operatorActor = service.Actor{ID: "telegram-operator", Role: models.RoleAdmin}

// Bot lets operators act on bookings and applications from Telegram.
type Bot struct {
	tg         domain.TelegramService
	cfg        config.TelegramConfig
	operators  map[int64]bool
	bookings   BookingOps
	onboarding OnboardingOps
	state      domain.StateRepository
	metrics    *Metrics
	logger     *zerolog.Logger
}

func NewBot(
	tg domain.TelegramService,
	cfg config.TelegramConfig,
	bookings BookingOps,
	onboarding OnboardingOps,
	state domain.StateRepository,
	metrics *Metrics,
	logger *zerolog.Logger,
) *Bot {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	if cfg.PaginationSize <= 0 {
		cfg.PaginationSize = models.DefaultPaginationSize
	}
	operators := make(map[int64]bool, len(cfg.OperatorChatIDs))
	for _, id := range cfg.OperatorChatIDs {
		operators[id] = true
	}
	return &Bot{
		tg:         tg,
		cfg:        cfg,
		operators:  operators,
		bookings:   bookings,
		onboarding: onboarding,
		state:      state,
		metrics:    metrics,
		logger:     logger,
	}
}

// NewAPIWrapper adapts a Bot API client to TelegramService.
func NewAPIWrapper(api *tgbotapi.BotAPI) domain.TelegramService {
	return apiWrapper{BotAPI: api}
}

type apiWrapper struct {
	*tgbotapi.BotAPI
}

func (w apiWrapper) GetSelf() tgbotapi.User {
	return w.Self
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Int("operator_chats", len(b.operators)).Msg("Operator bot authorized")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Operator bot stopping")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates.
func (b *Bot) Stop() {
	if b == nil || b.tg == nil {
		return
	}
	b.tg.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		chatID, userID := updateOrigin(update)
		if chatID == 0 {
			return
		}
		if !b.operators[chatID] {
			b.count("unauthorized")
			l.Warn().Int64("chat_id", chatID).Int64("user_id", userID).Msg("Update from a chat that is not an operator chat")
			if update.Message != nil {
				b.send(tgbotapi.NewMessage(chatID, "This bot is for MaidLink operators only."))
			}
			return
		}
		if !b.allow(updateCtx, userID) {
			b.count("rate_limited")
			if update.Message != nil {
				b.send(tgbotapi.NewMessage(chatID, "⚠️ Too many requests. Please wait a moment."))
			}
			return
		}

		switch {
		case update.CallbackQuery != nil:
			b.count("callback")
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
		case update.Message != nil && update.Message.IsCommand():
			b.count("command")
			b.handleCommand(updateCtx, update.Message)
		case update.Message != nil:
			b.count("message")
			b.send(tgbotapi.NewMessage(chatID, "Send /help for the list of commands."))
		}
	})
}

func updateOrigin(update tgbotapi.Update) (chatID, userID int64) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		chatID = update.CallbackQuery.Message.Chat.ID
		if update.CallbackQuery.From != nil {
			userID = update.CallbackQuery.From.ID
		}
	case update.Message != nil && update.Message.Chat != nil:
		chatID = update.Message.Chat.ID
		if update.Message.From != nil {
			userID = update.Message.From.ID
		}
	}
	return chatID, userID
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tg.Send(c); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *Bot) count(kind string) {
	if b.metrics != nil {
		b.metrics.UpdatesProcessed.WithLabelValues(kind).Inc()
	}
}
