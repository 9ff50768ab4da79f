package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/events"
	"maidlink/internal/metrics"
	"maidlink/internal/models"

	"github.com/rs/zerolog"
)

type CreateBookingRequest struct {
	ServiceKind         models.ServiceKind `json:"service_kind"`
	CleanerID           string             `json:"cleaner_id"`
	ScheduledAt         time.Time          `json:"scheduled_at" validate:"required"`
	Hours               int                `json:"hours" validate:"gt=0,lte=24"`
	ServiceArea         string             `json:"service_area"`
	Address             string             `json:"address" validate:"required,max=500"`
	CustomerName        string             `json:"customer_name" validate:"required,max=200"`
	CustomerEmail       string             `json:"customer_email" validate:"required,email"`
	CustomerPhone       string             `json:"customer_phone" validate:"required,min=7,max=20"`
	SpecialInstructions string             `json:"special_instructions" validate:"max=2000"`
}

type BookingService struct {
	ledger  domain.Ledger
	catalog *models.Catalog
	events  domain.EventPublisher
	logger  *zerolog.Logger
	now     func() time.Time
	newID   func() string
}

func NewBookingService(ledger domain.Ledger, catalog *models.Catalog, bus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		ledger:  ledger,
		catalog: catalog,
		events:  bus,
		logger:  logger,
		now:     utcNow,
		newID:   newID,
	}
}

// CreateBooking prices the visit from the catalog and stores it awaiting payment.
func (s *BookingService) CreateBooking(ctx context.Context, customerID string, req CreateBookingRequest) (*models.Booking, error) {
	pkg, ok := s.catalog.Package(req.ServiceKind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidServiceKind, req.ServiceKind)
	}

	cleaner, err := s.ledger.GetCleaner(ctx, strings.TrimSpace(req.CleanerID))
	if err != nil {
		return nil, notFoundAs(err, domain.ErrCleanerNotFound)
	}
	if !cleaner.Available {
		return nil, fmt.Errorf("%w: %s is not available", domain.ErrCleanerNotFound, cleaner.ID)
	}

	area, ok := s.catalog.Area(req.ServiceArea)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedServiceArea, req.ServiceArea)
	}

	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	now := s.now()
	booking := &models.Booking{
		ID:                  s.newID(),
		ServiceKind:         pkg.Kind,
		CleanerID:           cleaner.ID,
		CleanerName:         cleaner.Name,
		CustomerID:          customerID,
		ScheduledAt:         req.ScheduledAt.UTC(),
		Hours:               req.Hours,
		ServiceArea:         area,
		Address:             strings.TrimSpace(req.Address),
		CustomerName:        strings.TrimSpace(req.CustomerName),
		CustomerEmail:       strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:       strings.TrimSpace(req.CustomerPhone),
		SpecialInstructions: req.SpecialInstructions,
		TotalAmount:         pkg.HourlyRate * int64(req.Hours),
		Currency:            s.catalog.Currency,
		Status:              models.BookingPendingPayment,
		PaymentStatus:       models.PaymentPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.ledger.CreateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	metrics.IncTransition("booking", string(booking.Status))
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("cleaner_id", booking.CleanerID).
		Int64("total_amount", booking.TotalAmount).
		Msg("Booking created")
	s.publish(events.EventBookingCreated, booking, "")
	return booking, nil
}

// RequestCleanerAcceptance hands a confirmed booking to its cleaner for an accept/decline answer.
func (s *BookingService) RequestCleanerAcceptance(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.BookingEventRequestAcceptance, models.BookingGuard{}, models.BookingPatch{}, events.EventBookingAssigned, "")
}

// RecordCleanerResponse stores the assigned cleaner's answer. Bookings assigned to someone
// else look exactly like missing ones.
func (s *BookingService) RecordCleanerResponse(ctx context.Context, bookingID, cleanerID string, accepted bool, reason string) (*models.Booking, error) {
	booking, err := s.owned(ctx, bookingID, func(b *models.Booking) bool { return b.CleanerID == cleanerID })
	if err != nil {
		return nil, err
	}

	ev, eventType := models.BookingEventDecline, events.EventBookingDeclined
	if accepted {
		ev, eventType = models.BookingEventAccept, events.EventBookingAccepted
	}
	if _, ok := models.NextBookingStatus(booking.Status, ev); !ok {
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}

	resp := &models.CleanerResponse{
		Accepted:    accepted,
		Reason:      strings.TrimSpace(reason),
		RespondedAt: s.now(),
	}
	return s.transition(ctx, bookingID, ev,
		models.BookingGuard{CleanerID: cleanerID},
		models.BookingPatch{CleanerResponse: resp},
		eventType, resp.Reason)
}

// CancelBooking withdraws an unpaid booking on the customer's request.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, customerID string) (*models.Booking, error) {
	booking, err := s.owned(ctx, bookingID, func(b *models.Booking) bool { return b.CustomerID == customerID })
	if err != nil {
		return nil, err
	}
	if booking.PaymentStatus == models.PaymentPaid {
		return nil, domain.ErrAlreadyPaid
	}
	return s.transition(ctx, bookingID, models.BookingEventCancel,
		models.BookingGuard{CustomerID: customerID, PaymentStatusNot: models.PaymentPaid},
		models.BookingPatch{}, events.EventBookingCanceled, "")
}

func (s *BookingService) StartBooking(ctx context.Context, bookingID, cleanerID string) (*models.Booking, error) {
	if _, err := s.owned(ctx, bookingID, func(b *models.Booking) bool { return b.CleanerID == cleanerID }); err != nil {
		return nil, err
	}
	return s.transition(ctx, bookingID, models.BookingEventStart,
		models.BookingGuard{CleanerID: cleanerID}, models.BookingPatch{}, events.EventBookingStarted, "")
}

func (s *BookingService) CompleteBooking(ctx context.Context, bookingID, cleanerID string) (*models.Booking, error) {
	if _, err := s.owned(ctx, bookingID, func(b *models.Booking) bool { return b.CleanerID == cleanerID }); err != nil {
		return nil, err
	}
	return s.transition(ctx, bookingID, models.BookingEventComplete,
		models.BookingGuard{CleanerID: cleanerID}, models.BookingPatch{}, events.EventBookingDone, "")
}

// GetBooking returns the booking if the actor may see it.
func (s *BookingService) GetBooking(ctx context.Context, bookingID string, actor Actor) (*models.Booking, error) {
	return s.owned(ctx, bookingID, func(b *models.Booking) bool {
		switch actor.Role {
		case models.RoleAdmin:
			return true
		case models.RoleCleaner:
			return b.CleanerID == actor.ID
		default:
			return b.CustomerID == actor.ID
		}
	})
}

// ListBookings scopes the listing to what the actor may see.
func (s *BookingService) ListBookings(ctx context.Context, actor Actor, status models.BookingStatus, limit int) ([]*models.Booking, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown booking status %q", domain.ErrInvalidInput, status)
	}
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	filter := models.BookingFilter{Status: status, Limit: limit}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleCleaner:
		filter.CleanerID = actor.ID
	default:
		filter.CustomerID = actor.ID
	}

	bookings, err := s.ledger.ListBookings(ctx, filter)
	if err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	return bookings, nil
}

func (s *BookingService) owned(ctx context.Context, bookingID string, visible func(*models.Booking) bool) (*models.Booking, error) {
	booking, err := s.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrBookingNotFound)
	}
	if !visible(booking) {
		return nil, domain.ErrBookingNotFound
	}
	return booking, nil
}

// transition fires ev as one conditional update guarded on the event's source states.
func (s *BookingService) transition(
	ctx context.Context,
	bookingID string,
	ev models.BookingEvent,
	guard models.BookingGuard,
	patch models.BookingPatch,
	eventType, reason string,
) (*models.Booking, error) {
	to := models.BookingTarget(ev)
	guard.Statuses = models.BookingSources(ev)
	patch.Status = &to

	applied, err := s.ledger.UpdateBookingIf(ctx, bookingID, guard, patch)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: cannot %s booking %s", domain.ErrInvalidState, strings.ReplaceAll(string(ev), "_", " "), bookingID)
	}

	metrics.IncTransition("booking", string(to))
	booking, err := s.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload booking: %w", err)
	}
	s.logger.Info().Str("booking_id", bookingID).Str("event", string(ev)).Str("status", string(to)).Msg("Booking transition applied")
	s.publish(eventType, booking, reason)
	return booking, nil
}

func (s *BookingService) publish(eventType string, b *models.Booking, reason string) {
	publish(s.events, s.logger, eventType, bookingPayload(b, reason))
}

func bookingPayload(b *models.Booking, reason string) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:     b.ID,
		CustomerID:    b.CustomerID,
		CleanerID:     b.CleanerID,
		CleanerName:   b.CleanerName,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		TotalAmount:   b.TotalAmount,
		ScheduledAt:   b.ScheduledAt,
		SessionID:     b.PaidSessionID,
		Reason:        reason,
	}
}
