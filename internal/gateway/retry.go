package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/models"
	"maidlink/internal/worker"

	"github.com/rs/zerolog"
)

// Retrying retries status lookups with backoff. Session creation and webhook
// parsing pass straight through.
type Retrying struct {
	domain.PaymentGateway
	policy worker.RetryPolicy
	logger *zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func WithRetry(gw domain.PaymentGateway, policy worker.RetryPolicy, logger *zerolog.Logger) *Retrying {
	return &Retrying{
		PaymentGateway: gw,
		policy:         policy,
		logger:         logger,
		sleep:          sleepCtx,
	}
}

func (r *Retrying) GetSessionStatus(ctx context.Context, sessionID string) (*models.GatewaySessionStatus, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts(); attempt++ {
		st, err := r.PaymentGateway.GetSessionStatus(ctx, sessionID)
		if err == nil {
			return st, nil
		}
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, err
		}
		lastErr = err
		if r.policy.Exhausted(attempt) {
			break
		}

		delay := r.policy.NextDelay(attempt)
		r.logger.Warn().Err(err).
			Str("session_id", sessionID).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Gateway status lookup failed, retrying")
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("gateway status lookup failed after %d attempts: %w", r.policy.Attempts(), lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
