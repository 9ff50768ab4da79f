package bot

import (
	"maidlink/internal/domain"
)

// errorMessage turns a service error into a reply an operator can act on.
func (b *Bot) errorMessage(err error) string {
	if err == nil {
		return ""
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		return "⚠️ " + err.Error()
	case domain.KindNotFound:
		return "🔎 Not found. Check the id and try again."
	case domain.KindConflict:
		return "⚠️ Not possible right now: " + err.Error()
	case domain.KindCollaborator:
		return "📡 An external service is unavailable. Try again in a few minutes."
	case domain.KindRateLimited:
		return "⚠️ Rate limit exceeded. Please wait."
	}

	b.logger.Error().Err(err).Msg("Operator command failed")
	return "❌ Something went wrong. The error has been logged."
}
