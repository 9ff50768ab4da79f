package verification

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"maidlink/internal/config"
	"maidlink/internal/domain"
	"maidlink/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const recordMissingStatus = "record_missing"

// Simulated is a stand-in provider for development. Check records are kept in
// the state repository so the API and worker processes see the same checks.
type Simulated struct {
	store    domain.StateRepository
	minDelay time.Duration
	maxDelay time.Duration
	passRate float64
	logger   *zerolog.Logger

	now    func() time.Time
	random func() float64
}

func NewSimulated(store domain.StateRepository, cfg config.SimulatedConfig, logger *zerolog.Logger) *Simulated {
	return &Simulated{
		store:    store,
		minDelay: cfg.MinDelay,
		maxDelay: cfg.MaxDelay,
		passRate: cfg.PassRate,
		logger:   logger,
		now:      time.Now,
		random:   rand.Float64,
	}
}

func (s *Simulated) Initiate(ctx context.Context, applicant models.Applicant) (*models.CheckInitiation, error) {
	now := s.now().UTC()
	delay := s.minDelay
	if span := s.maxDelay - s.minDelay; span > 0 {
		delay += time.Duration(s.random() * float64(span))
	}

	rec := &models.CheckRecord{
		CheckID:       uuid.NewString(),
		ApplicationID: applicant.ApplicationID,
		State:         "pending",
		Clear:         s.random() < s.passRate,
		CreatedAt:     now,
		CompletesAt:   now.Add(delay),
	}
	if err := s.store.SaveCheck(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save check record: %w", err)
	}

	s.logger.Info().
		Str("check_id", rec.CheckID).
		Str("application_id", applicant.ApplicationID).
		Time("completes_at", rec.CompletesAt).
		Msg("Simulated background check initiated")

	eta := rec.CompletesAt
	return &models.CheckInitiation{CheckID: rec.CheckID, EstimatedCompletion: &eta}, nil
}

func (s *Simulated) GetStatus(ctx context.Context, checkID string) (*models.CheckResult, error) {
	rec, err := s.store.GetCheck(ctx, checkID)
	if err != nil {
		return nil, fmt.Errorf("failed to load check record: %w", err)
	}
	if rec == nil {
		// Expired or never created. Report a provider failure so an operator picks it up.
		s.logger.Warn().Str("check_id", checkID).Msg("Simulated check record missing, reporting failure")
		return &models.CheckResult{CheckID: checkID, ProviderStatus: recordMissingStatus, Status: models.VerificationFailed}, nil
	}

	if s.now().Before(rec.CompletesAt) {
		res := result(checkID, "pending", nil)
		eta := rec.CompletesAt
		res.EstimatedCompletion = &eta
		return res, nil
	}

	providerStatus := "consider"
	if rec.Clear {
		providerStatus = "clear"
	}
	return result(checkID, providerStatus, simulatedResults(rec.Clear)), nil
}

func simulatedResults(clear bool) map[string]any {
	overall, criminal := "clear", "clear"
	var records []map[string]any
	if !clear {
		overall, criminal = "consider", "records_found"
		records = []map[string]any{{
			"case_number": "SIM-2019-123",
			"charge":      "Minor Traffic Violation",
			"disposition": "Resolved",
		}}
	}
	return map[string]any{
		"overall_status": overall,
		"identity_verification": map[string]any{
			"status":     "verified",
			"ssn_valid":  true,
			"name_match": true,
		},
		"criminal_background": map[string]any{
			"status":  criminal,
			"records": records,
		},
		"sex_offender_search": map[string]any{"status": "clear"},
	}
}
