package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"maidlink/internal/models"
	"maidlink/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Paginated lists, addressed in callback data as page:<list>:<n>.
const (
	listBookings = "bookings"
	listPending  = "pending"
	listChecks   = "checks"

	pagePrefix = "page:"
)

type PaginationParams struct {
	ChatID     int64
	MessageID  int // 0 sends a new message
	Page       int
	Title      string
	Empty      string
	PagePrefix string
}

// renderPaginatedList draws one page of a list with prev/next buttons.
func (b *Bot) renderPaginatedList(params PaginationParams, totalCount int, renderer func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton)) {
	itemsPerPage := b.cfg.PaginationSize
	if itemsPerPage <= 0 {
		itemsPerPage = models.DefaultPaginationSize
	}

	if totalCount == 0 {
		b.sendOrEdit(params, params.Title+"\n\n"+params.Empty, nil)
		return
	}

	totalPages := (totalCount + itemsPerPage - 1) / itemsPerPage
	if params.Page < 0 {
		params.Page = 0
	}
	if params.Page >= totalPages {
		params.Page = totalPages - 1
	}
	startIdx := params.Page * itemsPerPage
	endIdx := startIdx + itemsPerPage
	if endIdx > totalCount {
		endIdx = totalCount
	}

	content, keyboard := renderer(startIdx, endIdx)

	var message strings.Builder
	fmt.Fprintf(&message, "%s\n\n", params.Title)
	if totalPages > 1 {
		fmt.Fprintf(&message, "Page %d of %d\n\n", params.Page+1, totalPages)
	}
	message.WriteString(content)

	var navButtons []tgbotapi.InlineKeyboardButton
	if params.Page > 0 {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev", fmt.Sprintf("%s%d", params.PagePrefix, params.Page-1)))
	}
	if endIdx < totalCount {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("%s%d", params.PagePrefix, params.Page+1)))
	}
	if len(navButtons) > 0 {
		keyboard = append(keyboard, navButtons)
	}

	var markup *tgbotapi.InlineKeyboardMarkup
	if len(keyboard) > 0 {
		m := tgbotapi.NewInlineKeyboardMarkup(keyboard...)
		markup = &m
	}
	b.sendOrEdit(params, message.String(), markup)
}

func (b *Bot) sendOrEdit(params PaginationParams, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if params.MessageID != 0 {
		edit := tgbotapi.NewEditMessageText(params.ChatID, params.MessageID, text)
		edit.ReplyMarkup = markup
		b.send(edit)
		return
	}
	msg := tgbotapi.NewMessage(params.ChatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	b.send(msg)
}

// renderList fetches a list fresh from the ledger and renders the requested page.
func (b *Bot) renderList(ctx context.Context, chatID int64, messageID int, list string, page int) {
	params := PaginationParams{
		ChatID:     chatID,
		MessageID:  messageID,
		Page:       page,
		PagePrefix: pagePrefix + list + ":",
	}

	switch list {
	case listBookings:
		bookings, err := b.bookings.ListBookings(ctx, operatorActor, models.BookingConfirmed, listFetchLimit)
		if err != nil {
			b.reply(chatID, b.errorMessage(err))
			return
		}
		params.Title = "💳 Paid bookings waiting for a cleaner"
		params.Empty = "Nothing to assign."
		b.renderPaginatedBookings(params, bookings)

	case listPending:
		apps, err := b.onboarding.ListApplications(ctx, models.ApplicationDocumentsSubmitted, listFetchLimit)
		if err != nil {
			b.reply(chatID, b.errorMessage(err))
			return
		}
		params.Title = "📄 Applications ready for a background check"
		params.Empty = "No applications are waiting."
		b.renderPaginatedApplications(params, apps, "Start check", service.ActionStartCheck)

	case listChecks:
		apps, err := b.onboarding.ListApplications(ctx, models.ApplicationBackgroundCheck, listFetchLimit)
		if err != nil {
			b.reply(chatID, b.errorMessage(err))
			return
		}
		params.Title = "🔍 Background checks in progress"
		params.Empty = "No checks are running."
		b.renderPaginatedApplications(params, apps, "Poll", service.ActionPollCheck)

	default:
		b.reply(chatID, "Unknown list.")
	}
}

func (b *Bot) renderPaginatedBookings(params PaginationParams, bookings []*models.Booking) {
	b.renderPaginatedList(params, len(bookings), func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton) {
		var content strings.Builder
		var keyboard [][]tgbotapi.InlineKeyboardButton

		for i, booking := range bookings[startIdx:endIdx] {
			fmt.Fprintf(&content, "%d. %s\n", startIdx+i+1, booking.ID)
			fmt.Fprintf(&content, "   🧹 %s, %dh in %s\n", booking.ServiceKind, booking.Hours, booking.ServiceArea)
			fmt.Fprintf(&content, "   👤 %s for %s\n", booking.CleanerName, booking.CustomerName)
			fmt.Fprintf(&content, "   📅 %s\n\n", booking.ScheduledAt.Format(time.RFC822))

			btn := tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%d. Assign %s", startIdx+i+1, booking.CleanerName),
				service.ActionAssignBooking+booking.ID,
			)
			keyboard = append(keyboard, []tgbotapi.InlineKeyboardButton{btn})
		}
		return content.String(), keyboard
	})
}

func (b *Bot) renderPaginatedApplications(params PaginationParams, apps []*models.CleanerApplication, label, action string) {
	b.renderPaginatedList(params, len(apps), func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton) {
		var content strings.Builder
		var keyboard [][]tgbotapi.InlineKeyboardButton

		for i, app := range apps[startIdx:endIdx] {
			fmt.Fprintf(&content, "%d. %s\n", startIdx+i+1, applicantName(app))
			fmt.Fprintf(&content, "   🆔 %s\n", app.ID)
			if app.BackgroundCheckID != "" {
				fmt.Fprintf(&content, "   🔍 %s (%s)\n", app.BackgroundCheckID, app.BackgroundCheckStatus)
			}
			fmt.Fprintf(&content, "   🕒 updated %s\n\n", app.UpdatedAt.Format(time.RFC822))

			keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d. %s", startIdx+i+1, label), action+app.ID),
				tgbotapi.NewInlineKeyboardButtonData("Details", service.ActionShowApp+app.ID),
			))
		}
		return content.String(), keyboard
	})
}
