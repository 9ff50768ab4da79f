package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"maidlink/internal/config"
	"maidlink/internal/domain"
	"maidlink/internal/models"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Stripe opens hosted Checkout sessions and verifies Stripe webhooks.
type Stripe struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
	logger        *zerolog.Logger
}

func NewStripe(cfg config.StripeConfig, tolerance time.Duration, logger *zerolog.Logger) *Stripe {
	return NewStripeWithBackends(cfg, tolerance, nil, logger)
}

// NewStripeWithBackends allows pointing the client at a different API host.
func NewStripeWithBackends(cfg config.StripeConfig, tolerance time.Duration, backends *stripe.Backends, logger *zerolog.Logger) *Stripe {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Stripe{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		tolerance:     tolerance,
		logger:        logger,
	}
}

func (s *Stripe) CreateSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", mapStripeError(err))
	}

	s.logger.Debug().Str("session_id", sess.ID).Str("booking_id", req.BookingID).Msg("Stripe checkout session created")
	return &models.CheckoutSession{SessionID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) GetSessionStatus(ctx context.Context, sessionID string) (*models.GatewaySessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", mapStripeError(err))
	}
	return sessionStatus(sess), nil
}

func (s *Stripe) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	return parseEvent(payload, signature, s.webhookSecret, s.tolerance)
}

func parseEvent(payload []byte, signature, secret string, tolerance time.Duration) (*models.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: malformed event: %v", domain.ErrInvalidInput, err)
	}

	out := &models.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode event object: %w", err)
	}
	st := sessionStatus(&sess)
	out.SessionID = st.SessionID
	out.Status = st.Status
	out.PaymentStatus = st.PaymentStatus
	return out, nil
}

func sessionStatus(sess *stripe.CheckoutSession) *models.GatewaySessionStatus {
	return &models.GatewaySessionStatus{
		SessionID:     sess.ID,
		Status:        string(sess.Status),
		PaymentStatus: NormalizePaymentStatus(string(sess.Status), string(sess.PaymentStatus)),
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		Metadata:      sess.Metadata,
	}
}

// NormalizePaymentStatus folds gateway session and payment states into pending, paid or failed.
func NormalizePaymentStatus(sessionStatus, paymentStatus string) models.PaymentStatus {
	switch paymentStatus {
	case string(stripe.CheckoutSessionPaymentStatusPaid), string(stripe.CheckoutSessionPaymentStatusNoPaymentRequired):
		return models.PaymentPaid
	}
	if sessionStatus == string(stripe.CheckoutSessionStatusExpired) {
		return models.PaymentFailed
	}
	return models.PaymentPending
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func mapStripeError(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", domain.ErrRecordNotFound, err)
	}
	return err
}
