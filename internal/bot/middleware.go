package bot

import (
	"context"
	"fmt"
)

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.ErrorsTotal.Inc()
			}
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// allow applies the per-user message budget. A broken state store does not lock operators out.
func (b *Bot) allow(ctx context.Context, userID int64) bool {
	if b.state == nil || b.cfg.RateLimitMessages <= 0 {
		return true
	}
	allowed, err := b.state.CheckRateLimit(ctx, fmt.Sprintf("bot:%d", userID), b.cfg.RateLimitMessages, b.cfg.RateLimitWindow)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
		return true
	}
	if !allowed {
		b.logger.Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
	}
	return allowed
}
