package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/events"
	"maidlink/internal/gateway"
	"maidlink/internal/metrics"
	"maidlink/internal/models"

	"github.com/rs/zerolog"
)

// Reconcile outcomes, as reported in metrics and logs.
const (
	OutcomeConfirmed     = "confirmed"
	OutcomeOutOfSequence = "out_of_sequence"
	OutcomeAlreadyPaid   = "already_applied"
	OutcomePending       = "pending"
	OutcomeFailed        = "failed"
)

const checkoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"

type PaymentOptions struct {
	ProductLabel string
	SweepAge     time.Duration
	SweepBatch   int
}

type PaymentService struct {
	ledger  domain.Ledger
	gateway domain.PaymentGateway
	events  domain.EventPublisher
	opts    PaymentOptions
	logger  *zerolog.Logger
	now     func() time.Time
	newID   func() string
}

func NewPaymentService(ledger domain.Ledger, gw domain.PaymentGateway, bus domain.EventPublisher, opts PaymentOptions, logger *zerolog.Logger) *PaymentService {
	if opts.ProductLabel == "" {
		opts.ProductLabel = "Cleaning service"
	}
	if opts.SweepAge <= 0 {
		opts.SweepAge = 15 * time.Minute
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 50
	}
	return &PaymentService{
		ledger:  ledger,
		gateway: gw,
		events:  bus,
		opts:    opts,
		logger:  logger,
		now:     utcNow,
		newID:   newID,
	}
}

// OpenSession starts a hosted checkout for the booking's stored amount.
// customerID, when set, must own the booking.
func (s *PaymentService) OpenSession(ctx context.Context, bookingID, customerID, origin string) (*models.CheckoutSession, error) {
	origin, err := normalizeOrigin(origin)
	if err != nil {
		return nil, err
	}

	booking, err := s.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrBookingNotFound)
	}
	if customerID != "" && booking.CustomerID != customerID {
		return nil, domain.ErrBookingNotFound
	}
	if booking.PaymentStatus == models.PaymentPaid {
		return nil, domain.ErrAlreadyPaid
	}
	if booking.Status != models.BookingPendingPayment {
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}

	req := models.CheckoutRequest{
		BookingID:   booking.ID,
		Amount:      booking.TotalAmount,
		Currency:    booking.Currency,
		ProductName: fmt.Sprintf("%s: %s, %dh", s.opts.ProductLabel, booking.ServiceKind, booking.Hours),
		SuccessURL:  fmt.Sprintf("%s?session_id=%s&booking_id=%s", origin, checkoutSessionPlaceholder, url.QueryEscape(booking.ID)),
		CancelURL:   fmt.Sprintf("%s?booking_id=%s&cancelled=true", origin, url.QueryEscape(booking.ID)),
		Metadata: map[string]string{
			"booking_id":  booking.ID,
			"customer_id": booking.CustomerID,
		},
	}
	session, err := s.gateway.CreateSession(ctx, req)
	if err != nil {
		return nil, collaborator("payment_gateway", err)
	}

	now := s.now()
	tx := &models.PaymentTransaction{
		ID:            s.newID(),
		SessionID:     session.SessionID,
		BookingID:     booking.ID,
		CustomerID:    booking.CustomerID,
		Amount:        booking.TotalAmount,
		Currency:      booking.Currency,
		Status:        models.SessionInitiated,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.ledger.CreatePayment(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record payment transaction: %w", err)
	}

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("session_id", session.SessionID).
		Int64("amount", tx.Amount).
		Msg("Checkout session opened")
	return session, nil
}

// Reconcile applies one observation of a checkout session to the ledger. Safe to repeat.
func (s *PaymentService) Reconcile(
	ctx context.Context, sessionID, status string, paymentStatus models.PaymentStatus,
) (*models.PaymentTransaction, error) {
	tx, _, err := s.reconcile(ctx, sessionID, status, paymentStatus, "direct")
	return tx, err
}

func (s *PaymentService) reconcile(
	ctx context.Context, sessionID, status string, paymentStatus models.PaymentStatus, source string,
) (*models.PaymentTransaction, string, error) {
	tx, err := s.ledger.UpdatePaymentStatus(ctx, sessionID, status, paymentStatus)
	if err != nil {
		return nil, "", notFoundAs(err, domain.ErrTransactionNotFound)
	}

	log := s.logger.With().Str("session_id", sessionID).Str("booking_id", tx.BookingID).Str("source", source).Logger()

	if tx.PaymentStatus != models.PaymentPaid {
		outcome := OutcomePending
		if tx.PaymentStatus == models.PaymentFailed {
			outcome = OutcomeFailed
			if paymentStatus == models.PaymentFailed {
				publish(s.events, s.logger, events.EventPaymentFailed, events.BookingEventPayload{
					BookingID:     tx.BookingID,
					CustomerID:    tx.CustomerID,
					PaymentStatus: string(tx.PaymentStatus),
					TotalAmount:   tx.Amount,
					SessionID:     sessionID,
				})
			}
		}
		metrics.IncReconcile(source, outcome)
		log.Debug().Str("payment_status", string(tx.PaymentStatus)).Msg("Payment not settled")
		return tx, outcome, nil
	}

	paid := models.PaymentPaid
	confirmed := models.BookingTarget(models.BookingEventPaymentReceived)
	applied, err := s.ledger.UpdateBookingIf(ctx, tx.BookingID,
		models.BookingGuard{
			Statuses:         models.BookingSources(models.BookingEventPaymentReceived),
			PaymentStatusNot: models.PaymentPaid,
		},
		models.BookingPatch{Status: &confirmed, PaymentStatus: &paid, PaidSessionID: ptr(sessionID)},
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to confirm booking: %w", notFoundAs(err, domain.ErrBookingNotFound))
	}
	if applied {
		metrics.IncTransition("booking", string(confirmed))
		metrics.IncReconcile(source, OutcomeConfirmed)
		log.Info().Msg("Booking paid and confirmed")
		s.publishBooking(ctx, events.EventBookingPaid, tx.BookingID, "")
		return tx, OutcomeConfirmed, nil
	}

	// The booking left pending_payment without being paid (e.g. cancelled): keep its
	// status, record the money.
	applied, err = s.ledger.UpdateBookingIf(ctx, tx.BookingID,
		models.BookingGuard{PaymentStatusNot: models.PaymentPaid},
		models.BookingPatch{PaymentStatus: &paid, PaidSessionID: ptr(sessionID)},
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to record out-of-sequence payment: %w", err)
	}
	if applied {
		metrics.IncReconcile(source, OutcomeOutOfSequence)
		log.Warn().Msg("Payment received for a booking no longer awaiting payment")
		s.publishBooking(ctx, events.EventPaymentOutOfSequence, tx.BookingID, "payment received after the booking left pending_payment")
		return tx, OutcomeOutOfSequence, nil
	}

	metrics.IncReconcile(source, OutcomeAlreadyPaid)
	log.Debug().Msg("Payment already applied")
	return tx, OutcomeAlreadyPaid, nil
}

// PollStatus asks the gateway for the session's current state and reconciles it.
// customerID, when set, must own the transaction.
func (s *PaymentService) PollStatus(ctx context.Context, sessionID, customerID string) (*models.PaymentTransaction, error) {
	tx, err := s.ledger.GetPaymentBySession(ctx, sessionID)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrTransactionNotFound)
	}
	if customerID != "" && tx.CustomerID != customerID {
		return nil, domain.ErrTransactionNotFound
	}

	observed, err := s.gateway.GetSessionStatus(ctx, sessionID)
	if err != nil {
		return nil, collaborator("payment_gateway", err)
	}

	tx, _, err = s.reconcile(ctx, sessionID, observed.Status, observed.PaymentStatus, "poll")
	return tx, err
}

// HandleWebhook verifies and applies a gateway notification. Events we do not act on are
// acknowledged without side effects.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		metrics.IncWebhook("unknown", "rejected")
		if errors.Is(err, domain.ErrInvalidSignature) {
			s.logger.Warn().Err(err).Msg("Webhook rejected")
		}
		return err
	}

	status, paymentStatus := ev.Status, ev.PaymentStatus
	switch ev.Type {
	case gateway.EventCheckoutCompleted, gateway.EventAsyncPaymentSucceeded:
	case gateway.EventAsyncPaymentFailed, gateway.EventCheckoutExpired:
		paymentStatus = models.PaymentFailed
	default:
		metrics.IncWebhook(ev.Type, "ignored")
		s.logger.Debug().Str("event_type", ev.Type).Msg("Webhook event ignored")
		return nil
	}

	_, outcome, err := s.reconcile(ctx, ev.SessionID, status, paymentStatus, "webhook")
	if err != nil {
		metrics.IncWebhook(ev.Type, "error")
		return err
	}
	metrics.IncWebhook(ev.Type, outcome)
	return nil
}

// SweepStale polls sessions still pending after the configured age, covering lost webhooks.
// It returns the number of transactions it managed to poll.
func (s *PaymentService) SweepStale(ctx context.Context) (int, error) {
	stale, err := s.ledger.ListPayments(ctx, models.PaymentFilter{
		PaymentStatus: models.PaymentPending,
		CreatedBefore: s.now().Add(-s.opts.SweepAge),
		Limit:         s.opts.SweepBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list stale payments: %w", err)
	}

	polled := 0
	for _, tx := range stale {
		if ctx.Err() != nil {
			return polled, ctx.Err()
		}
		if _, err := s.PollStatus(ctx, tx.SessionID, ""); err != nil {
			s.logger.Warn().Err(err).Str("session_id", tx.SessionID).Msg("Stale payment poll failed")
			continue
		}
		polled++
	}
	if len(stale) > 0 {
		s.logger.Info().Int("stale", len(stale)).Int("polled", polled).Msg("Stale payment sweep finished")
	}
	return polled, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.PaymentTransaction, error) {
	return s.ledger.ListPayments(ctx, filter)
}

func (s *PaymentService) publishBooking(ctx context.Context, eventType, bookingID, reason string) {
	booking, err := s.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		s.logger.Error().Err(err).Str("booking_id", bookingID).Msg("Failed to reload booking for event")
		return
	}
	publish(s.events, s.logger, eventType, bookingPayload(booking, reason))
}

func normalizeOrigin(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: origin must be an absolute http(s) URL", domain.ErrInvalidInput)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("%w: origin must not carry a query or fragment", domain.ErrInvalidInput)
	}
	return origin, nil
}
