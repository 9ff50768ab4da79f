package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/events"
	"maidlink/internal/models"

	"github.com/rs/zerolog"
)

type SubmitRatingRequest struct {
	BookingID string `json:"booking_id" validate:"required"`
	CleanerID string `json:"cleaner_id" validate:"required"`
	Score     int    `json:"score" validate:"min=1,max=5"`
	Review    string `json:"review" validate:"max=2000"`
}

type RatingService struct {
	ledger domain.Ledger
	events domain.EventPublisher
	logger *zerolog.Logger
	now    func() time.Time
	newID  func() string
}

func NewRatingService(ledger domain.Ledger, bus domain.EventPublisher, logger *zerolog.Logger) *RatingService {
	return &RatingService{ledger: ledger, events: bus, logger: logger, now: utcNow, newID: newID}
}

// SubmitRating records the customer's rating of a completed booking and refreshes the
// cleaner's average. The rating is kept even if the refresh fails.
func (s *RatingService) SubmitRating(ctx context.Context, customerID string, req SubmitRatingRequest) (*models.Rating, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	booking, err := s.ledger.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrBookingNotFound)
	}
	if booking.CustomerID != customerID {
		return nil, domain.ErrBookingNotFound
	}
	if booking.CleanerID != req.CleanerID {
		return nil, fmt.Errorf("%w: cleaner does not match the booking", domain.ErrInvalidInput)
	}
	if booking.Status != models.BookingCompleted {
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}

	rating := &models.Rating{
		ID:         s.newID(),
		BookingID:  booking.ID,
		CleanerID:  booking.CleanerID,
		CustomerID: customerID,
		Score:      req.Score,
		Review:     strings.TrimSpace(req.Review),
		CreatedAt:  s.now(),
	}
	if err := s.ledger.CreateRating(ctx, rating); err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			return nil, domain.ErrDuplicateRating
		}
		return nil, fmt.Errorf("failed to store rating: %w", err)
	}

	average, _, err := s.Recompute(ctx, rating.CleanerID)
	if err != nil {
		s.logger.Error().Err(err).Str("cleaner_id", rating.CleanerID).Str("booking_id", rating.BookingID).
			Msg("Rating stored but cleaner average not refreshed")
	}

	s.logger.Info().Str("booking_id", rating.BookingID).Str("cleaner_id", rating.CleanerID).Int("score", rating.Score).Msg("Rating submitted")
	publish(s.events, s.logger, events.EventRatingSubmitted, events.RatingEventPayload{
		BookingID: rating.BookingID,
		CleanerID: rating.CleanerID,
		Score:     rating.Score,
		Average:   average,
	})
	return rating, nil
}

// Recompute sets the cleaner's rating to the mean of all their ratings, one decimal.
func (s *RatingService) Recompute(ctx context.Context, cleanerID string) (float64, int, error) {
	ratings, err := s.ledger.ListRatingsByCleaner(ctx, cleanerID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list ratings: %w", err)
	}
	if len(ratings) == 0 {
		return 0, 0, nil
	}

	sum := 0
	for _, r := range ratings {
		sum += r.Score
	}
	average := RoundRating(float64(sum) / float64(len(ratings)))

	applied, err := s.ledger.UpdateCleanerRating(ctx, cleanerID, average, len(ratings))
	if err != nil {
		return average, len(ratings), fmt.Errorf("failed to update cleaner rating: %w", err)
	}
	if !applied {
		s.logger.Debug().Str("cleaner_id", cleanerID).Int("count", len(ratings)).
			Msg("Newer rating aggregate already stored")
	}
	return average, len(ratings), nil
}

func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}
