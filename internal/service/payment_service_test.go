package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/events"
	"maidlink/internal/gateway"
	"maidlink/internal/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingGateway struct {
	*gateway.Sandbox
	mu   sync.Mutex
	reqs []models.CheckoutRequest
}

func (g *recordingGateway) CreateSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()
	return g.Sandbox.CreateSession(ctx, req)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutSession), args.Error(1)
}

func (m *mockGateway) GetSessionStatus(ctx context.Context, sessionID string) (*models.GatewaySessionStatus, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GatewaySessionStatus), args.Error(1)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WebhookEvent), args.Error(1)
}

func TestOpenSession_UsesBookingAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gw := &recordingGateway{Sandbox: f.sandbox}
	payments := NewPaymentService(f.ledger, gw, f.bus, PaymentOptions{}, f.logger)

	b := f.createBooking(t, "cust-1")
	session, err := payments.OpenSession(ctx, b.ID, "cust-1", "https://app.example.com/checkout")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(session.SessionID, "cs_test_"))

	require.Len(t, gw.reqs, 1)
	req := gw.reqs[0]
	assert.Equal(t, int64(8000), req.Amount)
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, "https://app.example.com/checkout?session_id={CHECKOUT_SESSION_ID}&booking_id="+b.ID, req.SuccessURL)
	assert.Equal(t, "https://app.example.com/checkout?booking_id="+b.ID+"&cancelled=true", req.CancelURL)
	assert.Equal(t, b.ID, req.Metadata["booking_id"])

	tx, err := f.ledger.GetPaymentBySession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionInitiated, tx.Status)
	assert.Equal(t, models.PaymentPending, tx.PaymentStatus)
	assert.Equal(t, b.ID, tx.BookingID)
	assert.Equal(t, int64(8000), tx.Amount)
}

func TestOpenSession_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	origin := "https://app.example.com/checkout"

	_, err := f.payments.OpenSession(ctx, "missing", "", origin)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	b := f.createBooking(t, "cust-1")
	_, err = f.payments.OpenSession(ctx, b.ID, "cust-2", origin)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	for _, bad := range []string{"", "app.example.com", "ftp://example.com", "https://example.com/x?y=1"} {
		_, err = f.payments.OpenSession(ctx, b.ID, "cust-1", bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, bad)
	}

	_, err = f.bookings.CancelBooking(ctx, b.ID, "cust-1")
	require.NoError(t, err)
	_, err = f.payments.OpenSession(ctx, b.ID, "cust-1", origin)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	paid := f.paidBooking(t, "cust-1")
	_, err = f.payments.OpenSession(ctx, paid.ID, "cust-1", origin)
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
}

func TestOpenSession_GatewayFailure(t *testing.T) {
	f := newFixture(t)
	gw := &mockGateway{}
	gw.On("CreateSession", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
	payments := NewPaymentService(f.ledger, gw, f.bus, PaymentOptions{}, f.logger)

	b := f.createBooking(t, "cust-1")
	_, err := payments.OpenSession(context.Background(), b.ID, "cust-1", "https://app.example.com")
	assert.ErrorIs(t, err, domain.ErrCollaborator)
	assert.Equal(t, domain.KindCollaborator, domain.KindOf(err))

	list, err := f.ledger.ListPayments(context.Background(), models.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.createBooking(t, "cust-1")
	session, err := f.payments.OpenSession(ctx, b.ID, "", "https://app.example.com")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tx, err := f.payments.Reconcile(ctx, session.SessionID, models.SessionComplete, models.PaymentPaid)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPaid, tx.PaymentStatus)
	}

	got, err := f.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, session.SessionID, got.PaidSessionID)
	assert.Equal(t, 1, f.recorder.count(events.EventBookingPaid))
}

func TestReconcile_ConcurrentSessionsConfirmOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.createBooking(t, "cust-1")
	var sessions []string
	for i := 0; i < 2; i++ {
		s, err := f.payments.OpenSession(ctx, b.ID, "", "https://app.example.com")
		require.NoError(t, err)
		sessions = append(sessions, s.SessionID)
	}

	var wg sync.WaitGroup
	for _, id := range sessions {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := f.payments.Reconcile(ctx, id, models.SessionComplete, models.PaymentPaid)
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	got, err := f.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Contains(t, sessions, got.PaidSessionID)
	assert.Equal(t, 1, f.recorder.count(events.EventBookingPaid))
}

func TestReconcile_PaidIsSticky(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.createBooking(t, "cust-1")
	session, err := f.payments.OpenSession(ctx, b.ID, "", "https://app.example.com")
	require.NoError(t, err)

	_, err = f.payments.Reconcile(ctx, session.SessionID, models.SessionComplete, models.PaymentPaid)
	require.NoError(t, err)

	tx, err := f.payments.Reconcile(ctx, session.SessionID, models.SessionExpired, models.PaymentFailed)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, tx.PaymentStatus)
	assert.Equal(t, models.SessionExpired, tx.Status)
	assert.Equal(t, 0, f.recorder.count(events.EventPaymentFailed))

	got, err := f.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
}

func TestReconcile_PendingAndFailedLeaveBookingAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.createBooking(t, "cust-1")
	session, err := f.payments.OpenSession(ctx, b.ID, "", "https://app.example.com")
	require.NoError(t, err)

	tx, err := f.payments.Reconcile(ctx, session.SessionID, models.SessionOpen, models.PaymentPending)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, tx.PaymentStatus)

	tx, err = f.payments.Reconcile(ctx, session.SessionID, models.SessionExpired, models.PaymentFailed)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, tx.PaymentStatus)
	assert.Equal(t, 1, f.recorder.count(events.EventPaymentFailed))

	got, err := f.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPendingPayment, got.Status)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
}

func TestReconcile_CancelledBookingKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.createBooking(t, "cust-1")
	session, err := f.payments.OpenSession(ctx, b.ID, "", "https://app.example.com")
	require.NoError(t, err)
	_, err = f.bookings.CancelBooking(ctx, b.ID, "cust-1")
	require.NoError(t, err)

	_, err = f.payments.Reconcile(ctx, session.SessionID, models.SessionComplete, models.PaymentPaid)
	require.NoError(t, err)

	got, err := f.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, session.SessionID, got.PaidSessionID)
	assert.Equal(t, 1, f.recorder.count(events.EventPaymentOutOfSequence))
	assert.Equal(t, 0, f.recorder.count(events.EventBookingPaid))

	_, err = f.payments.Reconcile(ctx, session.SessionID, models.SessionComplete, models.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, 1, f.recorder.count(events.EventPaymentOutOfSequence))
}

func TestReconcile_UnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.payments.Reconcile(context.Background(), "cs_nope", models.SessionComplete, models.PaymentPaid)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open := func(t *testing.T) (*models.Booking, string) {
		b := f.createBooking(t, "cust-1")
		s, err := f.payments.OpenSession(ctx, b.ID, "", "https://app.example.com")
		require.NoError(t, err)
		return b, s.SessionID
	}

	t.Run("completed confirms booking", func(t *testing.T) {
		b, sessionID := open(t)
		payload, sig, err := f.sandbox.Complete(sessionID)
		require.NoError(t, err)

		require.NoError(t, f.payments.HandleWebhook(ctx, payload, sig))
		require.NoError(t, f.payments.HandleWebhook(ctx, payload, sig), "redelivery is a no-op")

		got, err := f.ledger.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingConfirmed, got.Status)
		assert.Equal(t, sessionID, got.PaidSessionID)
	})

	t.Run("bad signature has no side effects", func(t *testing.T) {
		b, sessionID := open(t)
		payload, _, err := f.sandbox.Complete(sessionID)
		require.NoError(t, err)

		forged := gateway.Sign(payload, "whsec_wrong", time.Now())
		err = f.payments.HandleWebhook(ctx, payload, forged)
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)

		got, err := f.ledger.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingPendingPayment, got.Status)
		tx, err := f.ledger.GetPaymentBySession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionInitiated, tx.Status)
	})

	t.Run("expired marks payment failed", func(t *testing.T) {
		b, sessionID := open(t)
		payload, sig, err := f.sandbox.Expire(sessionID)
		require.NoError(t, err)
		require.NoError(t, f.payments.HandleWebhook(ctx, payload, sig))

		tx, err := f.ledger.GetPaymentBySession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentFailed, tx.PaymentStatus)
		got, err := f.ledger.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingPendingPayment, got.Status)
	})

	t.Run("async failure marks payment failed", func(t *testing.T) {
		_, sessionID := open(t)
		payload, sig, err := f.sandbox.SignedEvent(gateway.EventAsyncPaymentFailed, &stripe.CheckoutSession{
			ID:            sessionID,
			Status:        stripe.CheckoutSessionStatusComplete,
			PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		})
		require.NoError(t, err)
		require.NoError(t, f.payments.HandleWebhook(ctx, payload, sig))

		tx, err := f.ledger.GetPaymentBySession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentFailed, tx.PaymentStatus)
	})

	t.Run("other event types are acknowledged", func(t *testing.T) {
		_, sessionID := open(t)
		payload, sig, err := f.sandbox.SignedEvent("checkout.session.created", &stripe.CheckoutSession{ID: sessionID})
		require.NoError(t, err)
		require.NoError(t, f.payments.HandleWebhook(ctx, payload, sig))

		tx, err := f.ledger.GetPaymentBySession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionInitiated, tx.Status)
	})

	t.Run("unknown session", func(t *testing.T) {
		payload, sig, err := f.sandbox.SignedEvent(gateway.EventCheckoutCompleted, &stripe.CheckoutSession{
			ID:            "cs_test_unknown",
			Status:        stripe.CheckoutSessionStatusComplete,
			PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, f.payments.HandleWebhook(ctx, payload, sig), domain.ErrTransactionNotFound)
	})
}

func TestPollStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.createBooking(t, "cust-1")
	session, err := f.payments.OpenSession(ctx, b.ID, "cust-1", "https://app.example.com")
	require.NoError(t, err)

	tx, err := f.payments.PollStatus(ctx, session.SessionID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, tx.PaymentStatus)
	assert.Equal(t, models.SessionOpen, tx.Status)

	_, _, err = f.sandbox.Complete(session.SessionID)
	require.NoError(t, err)

	_, err = f.payments.PollStatus(ctx, session.SessionID, "cust-2")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	tx, err = f.payments.PollStatus(ctx, session.SessionID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, tx.PaymentStatus)

	got, err := f.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
}

func TestPollStatus_GatewayFailureIsNotUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.createBooking(t, "cust-1")
	session, err := f.payments.OpenSession(ctx, b.ID, "", "https://app.example.com")
	require.NoError(t, err)

	gw := &mockGateway{}
	gw.On("GetSessionStatus", mock.Anything, session.SessionID).Return(nil, errors.New("503 from gateway"))
	payments := NewPaymentService(f.ledger, gw, f.bus, PaymentOptions{}, f.logger)

	_, err = payments.PollStatus(ctx, session.SessionID, "")
	assert.ErrorIs(t, err, domain.ErrCollaborator)

	tx, err := f.ledger.GetPaymentBySession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionInitiated, tx.Status)
	gw.AssertExpectations(t)
}

func TestSweepStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.createBooking(t, "cust-1")
	session, err := f.payments.OpenSession(ctx, b.ID, "", "https://app.example.com")
	require.NoError(t, err)
	_, _, err = f.sandbox.Complete(session.SessionID)
	require.NoError(t, err)

	fresh := f.createBooking(t, "cust-1")
	_, err = f.payments.OpenSession(ctx, fresh.ID, "", "https://app.example.com")
	require.NoError(t, err)

	polled, err := f.payments.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, polled, "nothing is old enough yet")

	f.payments.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	polled, err = f.payments.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, polled)

	got, err := f.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)

	still, err := f.ledger.GetBooking(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPendingPayment, still.Status)
}
