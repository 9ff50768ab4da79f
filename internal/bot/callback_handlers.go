package bot

import (
	"context"
	"strconv"
	"strings"

	"maidlink/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	data := callback.Data

	// Answer right away so the client stops showing the spinner.
	if _, err := b.tg.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to answer callback query")
	}

	switch {
	case strings.HasPrefix(data, pagePrefix):
		list, page, ok := parsePage(strings.TrimPrefix(data, pagePrefix))
		if !ok {
			return
		}
		b.renderList(ctx, chatID, callback.Message.MessageID, list, page)

	case strings.HasPrefix(data, service.ActionShowApp):
		b.showApplication(ctx, chatID, strings.TrimPrefix(data, service.ActionShowApp))

	default:
		for _, action := range []string{
			service.ActionAssignBooking,
			service.ActionStartCheck,
			service.ActionPollCheck,
			service.ActionSuspend,
		} {
			if id, ok := strings.CutPrefix(data, action); ok && id != "" {
				l := b.logger.Info().Str("action", strings.TrimSuffix(action, ":")).Str("id", id)
				if callback.From != nil {
					l = l.Int64("operator_id", callback.From.ID)
				}
				l.Msg("Operator action")
				b.reply(chatID, b.runAction(ctx, action, id))
				return
			}
		}
		b.logger.Warn().Str("data", data).Msg("Unknown callback data")
	}
}

func parsePage(s string) (string, int, bool) {
	list, n, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, false
	}
	page, err := strconv.Atoi(n)
	if err != nil || page < 0 {
		return "", 0, false
	}
	return list, page, true
}
