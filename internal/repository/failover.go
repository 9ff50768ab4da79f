package repository

import (
	"context"
	"sync/atomic"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStateRepository serves from primary (Redis) and drops to the in-memory
// fallback while primary is failing, probing it again after recoveryInterval.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverStateRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverStateRepository) markDown(op string, err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary state repository failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverStateRepository) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary state repository recovered")
	}
}

func (r *FailoverStateRepository) SaveCheck(ctx context.Context, rec *models.CheckRecord) error {
	if r.usePrimary() {
		err := r.primary.SaveCheck(ctx, rec)
		if err == nil {
			r.markUp()
			// keep a copy locally so reads survive a later outage
			_ = r.fallback.SaveCheck(ctx, rec)
			return nil
		}
		r.markDown("save_check", err)
	}
	return r.fallback.SaveCheck(ctx, rec)
}

func (r *FailoverStateRepository) GetCheck(ctx context.Context, checkID string) (*models.CheckRecord, error) {
	if r.usePrimary() {
		rec, err := r.primary.GetCheck(ctx, checkID)
		if err == nil {
			r.markUp()
			if rec != nil {
				return rec, nil
			}
			return r.fallback.GetCheck(ctx, checkID)
		}
		r.markDown("get_check", err)
	}
	return r.fallback.GetCheck(ctx, checkID)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown("rate_limit", err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
