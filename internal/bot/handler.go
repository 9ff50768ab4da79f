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

// listFetchLimit bounds how many records a paginated list pulls from the ledger.
const listFetchLimit = 100

const helpText = `MaidLink operator commands:

/bookings - paid bookings waiting for a cleaner
/pending - applications with all documents submitted
/checks - background checks in progress
/app <id> - application details
/assign <booking id> - ask the cleaner to accept
/check <application id> - start a background check
/poll <application id> - refresh a background check
/suspend <application id> - suspend an approved cleaner`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	arg := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		b.send(tgbotapi.NewMessage(chatID, helpText))
	case "bookings":
		b.renderList(ctx, chatID, 0, listBookings, 0)
	case "pending":
		b.renderList(ctx, chatID, 0, listPending, 0)
	case "checks":
		b.renderList(ctx, chatID, 0, listChecks, 0)
	case "app":
		b.withID(chatID, arg, func(id string) { b.showApplication(ctx, chatID, id) })
	case "assign":
		b.withID(chatID, arg, func(id string) { b.reply(chatID, b.runAction(ctx, service.ActionAssignBooking, id)) })
	case "check":
		b.withID(chatID, arg, func(id string) { b.reply(chatID, b.runAction(ctx, service.ActionStartCheck, id)) })
	case "poll":
		b.withID(chatID, arg, func(id string) { b.reply(chatID, b.runAction(ctx, service.ActionPollCheck, id)) })
	case "suspend":
		b.withID(chatID, arg, func(id string) { b.reply(chatID, b.runAction(ctx, service.ActionSuspend, id)) })
	default:
		b.reply(chatID, "Unknown command. Send /help for the list of commands.")
	}
}

func (b *Bot) withID(chatID int64, arg string, fn func(id string)) {
	id := strings.Fields(arg)
	if len(id) == 0 {
		b.reply(chatID, "⚠️ This command needs an id, for example /app 6f1c...")
		return
	}
	fn(id[0])
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	b.send(msg)
}

// runAction performs one operator action and returns the reply text.
func (b *Bot) runAction(ctx context.Context, action, id string) string {
	switch action {
	case service.ActionAssignBooking:
		booking, err := b.bookings.RequestCleanerAcceptance(ctx, id)
		if err != nil {
			return b.errorMessage(err)
		}
		return fmt.Sprintf("📨 Asked %s to accept booking %s (%s).", booking.CleanerName, booking.ID, booking.ScheduledAt.Format(time.RFC822))

	case service.ActionStartCheck:
		view, err := b.onboarding.InitiateBackgroundCheck(ctx, id)
		if err != nil {
			return b.errorMessage(err)
		}
		return fmt.Sprintf("🔍 Background check %s started for %s.", view.CheckID, applicantName(view.Application))

	case service.ActionPollCheck:
		view, err := b.onboarding.PollBackgroundCheck(ctx, id)
		if err != nil {
			return b.errorMessage(err)
		}
		return describeCheck(view)

	case service.ActionSuspend:
		app, err := b.onboarding.SuspendApplication(ctx, id)
		if err != nil {
			return b.errorMessage(err)
		}
		return fmt.Sprintf("⛔ %s is suspended.", applicantName(app))
	}
	return "Unknown action."
}

func (b *Bot) showApplication(ctx context.Context, chatID int64, id string) {
	app, err := b.onboarding.GetApplication(ctx, id)
	if err != nil {
		b.reply(chatID, b.errorMessage(err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, describeApplication(app))
	if row := applicationButtons(app); len(row) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}
	b.send(msg)
}

func applicationButtons(app *models.CleanerApplication) []tgbotapi.InlineKeyboardButton {
	switch app.Status {
	case models.ApplicationDocumentsSubmitted:
		return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Start background check", service.ActionStartCheck+app.ID))
	case models.ApplicationBackgroundCheck:
		return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Poll check", service.ActionPollCheck+app.ID))
	case models.ApplicationApproved:
		return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Suspend", service.ActionSuspend+app.ID))
	}
	return nil
}

func applicantName(app *models.CleanerApplication) string {
	if app == nil {
		return "applicant"
	}
	return strings.TrimSpace(app.PersonalInfo.FirstName + " " + app.PersonalInfo.LastName)
}

func describeApplication(app *models.CleanerApplication) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Application %s\n", app.ID)
	fmt.Fprintf(&sb, "Applicant: %s\n", applicantName(app))
	fmt.Fprintf(&sb, "Status: %s\n", app.Status)
	fmt.Fprintf(&sb, "Email: %s\n", app.PersonalInfo.Email)
	fmt.Fprintf(&sb, "Areas: %s\n", strings.Join(app.ServiceAreas, ", "))
	fmt.Fprintf(&sb, "Rate: $%d.%02d/h\n", app.HourlyRate/100, app.HourlyRate%100)

	docs := make([]string, 0, len(models.RequiredDocuments))
	for _, dt := range models.RequiredDocuments {
		mark := "❌"
		if _, ok := app.Documents[dt]; ok {
			mark = "✅"
		}
		docs = append(docs, fmt.Sprintf("%s %s", mark, dt))
	}
	fmt.Fprintf(&sb, "Documents: %s\n", strings.Join(docs, ", "))

	if app.BackgroundCheckID != "" {
		fmt.Fprintf(&sb, "Check: %s (%s", app.BackgroundCheckID, app.BackgroundCheckStatus)
		if app.BackgroundCheckVerdict != "" {
			fmt.Fprintf(&sb, ", %s", app.BackgroundCheckVerdict)
		}
		sb.WriteString(")\n")
	}
	return sb.String()
}

func describeCheck(view *service.CheckView) string {
	name := applicantName(view.Application)
	switch view.Status {
	case models.VerificationCompleted:
		return fmt.Sprintf("🏁 Check %s for %s completed: %s. Application is now %s.",
			view.CheckID, name, view.Verdict, view.Application.Status)
	case models.VerificationFailed:
		return fmt.Sprintf("❗ Check %s for %s failed at the provider (%s). Manual review needed.",
			view.CheckID, name, view.ProviderStatus)
	}
	text := fmt.Sprintf("⏳ Check %s for %s is %s.", view.CheckID, name, view.Status)
	if view.EstimatedCompletion != nil {
		text += " Expected by " + view.EstimatedCompletion.Format(time.RFC822) + "."
	}
	return text
}
