package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// OperatorNotifier forwards events that need a human to the operators' Telegram chats.
type OperatorNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewOperatorNotifier(bot domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *OperatorNotifier {
	return &OperatorNotifier{bot: bot, chatIDs: chatIDs, logger: logger}
}

// Callback data prefixes shared with the operator bot, followed by an entity id.
const (
	ActionAssignBooking = "assign:"
	ActionStartCheck    = "check:"
	ActionPollCheck     = "poll:"
	ActionSuspend       = "suspend:"
	ActionShowApp       = "app:"
)

// NotifiedEvents are the event types operators act on.
var NotifiedEvents = []string{
	events.EventBookingPaid,
	events.EventBookingDeclined,
	events.EventPaymentOutOfSequence,
	events.EventDocumentsSubmitted,
	events.EventCheckNeedsAttention,
	events.EventApplicationApproved,
	events.EventApplicationRejected,
}

func (n *OperatorNotifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(n.Handle, NotifiedEvents...)
}

// Handle renders one event and sends it to every operator chat.
func (n *OperatorNotifier) Handle(ev *events.Event) error {
	text, err := renderOperatorMessage(ev)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}

	actions := operatorActions(ev)

	var failed []string
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if actions != nil {
			msg.ReplyMarkup = *actions
		}
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Str("event_type", ev.Type).Msg("Failed to notify operator")
			failed = append(failed, fmt.Sprint(chatID))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("telegram delivery failed for chats %s", strings.Join(failed, ","))
	}
	return nil
}

func renderOperatorMessage(ev *events.Event) (string, error) {
	switch ev.Type {
	case events.EventBookingPaid, events.EventBookingDeclined, events.EventPaymentOutOfSequence:
		var p events.BookingEventPayload
		if err := ev.Decode(&p); err != nil {
			return "", fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		switch ev.Type {
		case events.EventBookingPaid:
			return fmt.Sprintf("💳 Booking %s paid (%s). Cleaner: %s, scheduled %s. Ready to assign.",
				p.BookingID, formatCents(p.TotalAmount), p.CleanerName, p.ScheduledAt.Format(time.RFC822)), nil
		case events.EventBookingDeclined:
			msg := fmt.Sprintf("🚫 %s declined booking %s (scheduled %s).", p.CleanerName, p.BookingID, p.ScheduledAt.Format(time.RFC822))
			if p.Reason != "" {
				msg += " Reason: " + p.Reason
			}
			return msg, nil
		default:
			return fmt.Sprintf("⚠️ Payment %s arrived for booking %s while it is %s. Check for a refund.",
				p.SessionID, p.BookingID, p.Status), nil
		}

	case events.EventDocumentsSubmitted, events.EventCheckNeedsAttention,
		events.EventApplicationApproved, events.EventApplicationRejected:
		var p events.ApplicationEventPayload
		if err := ev.Decode(&p); err != nil {
			return "", fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		switch ev.Type {
		case events.EventDocumentsSubmitted:
			return fmt.Sprintf("📄 %s submitted all documents (application %s). Start the background check.", p.ApplicantName, p.ApplicationID), nil
		case events.EventCheckNeedsAttention:
			return fmt.Sprintf("❗ Background check %s for %s failed at the provider (%s). Manual review needed.",
				p.CheckID, p.ApplicantName, p.ProviderStatus), nil
		case events.EventApplicationApproved:
			return fmt.Sprintf("✅ %s passed the background check (application %s).", p.ApplicantName, p.ApplicationID), nil
		default:
			return fmt.Sprintf("❌ %s was rejected after the background check (application %s).", p.ApplicantName, p.ApplicationID), nil
		}
	}
	return "", nil
}

// operatorActions offers the obvious next step as an inline button.
func operatorActions(ev *events.Event) *tgbotapi.InlineKeyboardMarkup {
	var ids struct {
		BookingID     string `json:"booking_id"`
		ApplicationID string `json:"application_id"`
	}
	if err := ev.Decode(&ids); err != nil {
		return nil
	}

	var button tgbotapi.InlineKeyboardButton
	switch ev.Type {
	case events.EventBookingPaid:
		button = tgbotapi.NewInlineKeyboardButtonData("Ask cleaner to accept", ActionAssignBooking+ids.BookingID)
	case events.EventDocumentsSubmitted:
		button = tgbotapi.NewInlineKeyboardButtonData("Start background check", ActionStartCheck+ids.ApplicationID)
	case events.EventCheckNeedsAttention:
		button = tgbotapi.NewInlineKeyboardButtonData("Open application", ActionShowApp+ids.ApplicationID)
	default:
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(button))
	return &markup
}

func formatCents(amount int64) string {
	return fmt.Sprintf("$%d.%02d", amount/100, amount%100)
}

// SubscribeBookingSync mirrors every booking lifecycle event into the spreadsheet queue.
func SubscribeBookingSync(bus *events.EventBus, sync domain.SyncWorker, logger *zerolog.Logger) {
	bus.Subscribe(func(ev *events.Event) error {
		var p events.BookingEventPayload
		if err := ev.Decode(&p); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		if err := sync.EnqueueBookingSync(context.Background(), p.BookingID); err != nil {
			logger.Error().Err(err).Str("booking_id", p.BookingID).Msg("sheets enqueue error")
			return err
		}
		return nil
	}, events.BookingEvents...)
}
