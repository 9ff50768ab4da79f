package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"maidlink/internal/config"
	"maidlink/internal/domain"
	"maidlink/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventCheckoutExpired       = "checkout.session.expired"
)

type sandboxSession struct {
	id            string
	amount        int64
	currency      string
	metadata      map[string]string
	status        stripe.CheckoutSessionStatus
	paymentStatus stripe.CheckoutSessionPaymentStatus
	createdAt     time.Time
}

// Sandbox is an in-process gateway for development. Its webhooks are signed
// exactly like Stripe's so the same verification path is exercised.
type Sandbox struct {
	mu                sync.Mutex
	sessions          map[string]*sandboxSession
	webhookSecret     string
	tolerance         time.Duration
	autoCompleteAfter time.Duration
	checkoutBaseURL   string
	logger            *zerolog.Logger
	now               func() time.Time
}

func NewSandbox(cfg config.SandboxConfig, tolerance time.Duration, logger *zerolog.Logger) *Sandbox {
	base := strings.TrimRight(cfg.CheckoutBaseURL, "/")
	if base == "" {
		base = "http://localhost:8080/sandbox/checkout"
	}
	return &Sandbox{
		sessions:          make(map[string]*sandboxSession),
		webhookSecret:     cfg.WebhookSecret,
		tolerance:         tolerance,
		autoCompleteAfter: cfg.AutoCompleteAfter,
		checkoutBaseURL:   base,
		logger:            logger,
		now:               time.Now,
	}
}

func (s *Sandbox) CreateSession(_ context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	id := "cs_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	s.mu.Lock()
	s.sessions[id] = &sandboxSession{
		id:            id,
		amount:        req.Amount,
		currency:      req.Currency,
		metadata:      maps.Clone(req.Metadata),
		status:        stripe.CheckoutSessionStatusOpen,
		paymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		createdAt:     s.now(),
	}
	s.mu.Unlock()

	s.logger.Debug().Str("session_id", id).Str("booking_id", req.BookingID).Msg("Sandbox checkout session created")
	return &models.CheckoutSession{SessionID: id, URL: s.checkoutBaseURL + "/" + id}, nil
}

func (s *Sandbox) GetSessionStatus(_ context.Context, sessionID string) (*models.GatewaySessionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrRecordNotFound)
	}
	if s.autoCompleteAfter > 0 && sess.status == stripe.CheckoutSessionStatusOpen &&
		s.now().Sub(sess.createdAt) >= s.autoCompleteAfter {
		sess.status = stripe.CheckoutSessionStatusComplete
		sess.paymentStatus = stripe.CheckoutSessionPaymentStatusPaid
	}
	return sessionStatus(sess.toStripe()), nil
}

func (s *Sandbox) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	return parseEvent(payload, signature, s.webhookSecret, s.tolerance)
}

// Complete marks the session paid and returns the signed webhook delivery for it.
func (s *Sandbox) Complete(sessionID string) ([]byte, string, error) {
	return s.transition(sessionID, EventCheckoutCompleted,
		stripe.CheckoutSessionStatusComplete, stripe.CheckoutSessionPaymentStatusPaid)
}

// Expire marks the session expired and returns the signed webhook delivery for it.
func (s *Sandbox) Expire(sessionID string) ([]byte, string, error) {
	return s.transition(sessionID, EventCheckoutExpired,
		stripe.CheckoutSessionStatusExpired, stripe.CheckoutSessionPaymentStatusUnpaid)
}

func (s *Sandbox) transition(sessionID, eventType string, status stripe.CheckoutSessionStatus,
	paymentStatus stripe.CheckoutSessionPaymentStatus,
) ([]byte, string, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, "", fmt.Errorf("session %s: %w", sessionID, domain.ErrRecordNotFound)
	}
	sess.status = status
	sess.paymentStatus = paymentStatus
	obj := sess.toStripe()
	s.mu.Unlock()

	return s.SignedEvent(eventType, obj)
}

// SignedEvent wraps obj in an event envelope and signs it with the webhook secret.
func (s *Sandbox) SignedEvent(eventType string, obj *stripe.CheckoutSession) ([]byte, string, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal session: %w", err)
	}
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     s.now().Unix(),
		"data":        map[string]json.RawMessage{"object": raw},
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return payload, Sign(payload, s.webhookSecret, s.now()), nil
}

// Sign produces a Stripe-Signature header value for payload.
func Sign(payload []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

func (s *sandboxSession) toStripe() *stripe.CheckoutSession {
	return &stripe.CheckoutSession{
		ID:            s.id,
		Object:        "checkout.session",
		AmountTotal:   s.amount,
		Currency:      stripe.Currency(s.currency),
		Metadata:      maps.Clone(s.metadata),
		Status:        s.status,
		PaymentStatus: s.paymentStatus,
		Mode:          stripe.CheckoutSessionModePayment,
	}
}
