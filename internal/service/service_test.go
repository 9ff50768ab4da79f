package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"maidlink/internal/config"
	"maidlink/internal/database"
	"maidlink/internal/events"
	"maidlink/internal/gateway"
	"maidlink/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_secret"

type fixture struct {
	ledger   *database.DB
	bus      *events.EventBus
	recorder *eventRecorder
	catalog  *models.Catalog
	sandbox  *gateway.Sandbox
	logger   *zerolog.Logger

	bookings *BookingService
	payments *PaymentService
	ratings  *RatingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bus := events.NewEventBus()
	rec := &eventRecorder{}
	rec.subscribe(bus)

	catalog := models.NewCatalog(models.DefaultServicePackages(), models.DefaultServiceAreas(), "usd")
	sandbox := gateway.NewSandbox(config.SandboxConfig{WebhookSecret: testWebhookSecret}, 5*time.Minute, &logger)

	f := &fixture{
		ledger:   db,
		bus:      bus,
		recorder: rec,
		catalog:  catalog,
		sandbox:  sandbox,
		logger:   &logger,
	}
	f.bookings = NewBookingService(db, catalog, bus, &logger)
	f.payments = NewPaymentService(db, sandbox, bus, PaymentOptions{}, &logger)
	f.ratings = NewRatingService(db, bus, &logger)

	ctx := context.Background()
	require.NoError(t, db.UpsertCleaner(ctx, &models.Cleaner{ID: "cl-maria", Name: "Maria Garcia", Rating: 4.9, Available: true}))
	require.NoError(t, db.UpsertCleaner(ctx, &models.Cleaner{ID: "cl-james", Name: "James Wilson", Rating: 4.8, Available: true}))
	require.NoError(t, db.UpsertCleaner(ctx, &models.Cleaner{ID: "cl-away", Name: "On Vacation", Available: false}))
	return f
}

func bookingRequest() CreateBookingRequest {
	return CreateBookingRequest{
		ServiceKind:   models.ServiceRegularCleaning,
		CleanerID:     "cl-maria",
		ScheduledAt:   time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second),
		Hours:         2,
		ServiceArea:   "tempe",
		Address:       "100 Mill Ave",
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		CustomerPhone: "+14805550100",
	}
}

func (f *fixture) createBooking(t *testing.T, customerID string) *models.Booking {
	t.Helper()
	b, err := f.bookings.CreateBooking(context.Background(), customerID, bookingRequest())
	require.NoError(t, err)
	return b
}

// paidBooking walks a new booking through checkout and a signed webhook.
func (f *fixture) paidBooking(t *testing.T, customerID string) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b := f.createBooking(t, customerID)
	session, err := f.payments.OpenSession(ctx, b.ID, customerID, "https://app.example.com/checkout")
	require.NoError(t, err)
	payload, sig, err := f.sandbox.Complete(session.SessionID)
	require.NoError(t, err)
	require.NoError(t, f.payments.HandleWebhook(ctx, payload, sig))
	got, err := f.ledger.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, models.BookingConfirmed, got.Status)
	return got
}

// completedBooking drives a booking through the whole happy path.
func (f *fixture) completedBooking(t *testing.T, customerID string) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b := f.paidBooking(t, customerID)
	_, err := f.bookings.StartBooking(ctx, b.ID, b.CleanerID)
	require.NoError(t, err)
	done, err := f.bookings.CompleteBooking(ctx, b.ID, b.CleanerID)
	require.NoError(t, err)
	return done
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *eventRecorder) subscribe(bus *events.EventBus) {
	all := append([]string{}, events.BookingEvents...)
	all = append(all,
		events.EventPaymentFailed,
		events.EventApplicationSubmitted, events.EventDocumentsSubmitted, events.EventCheckStarted,
		events.EventApplicationApproved, events.EventApplicationRejected, events.EventCheckNeedsAttention,
		events.EventApplicationSuspended, events.EventRatingSubmitted,
	)
	bus.Subscribe(func(ev *events.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
		return nil
	}, all...)
}

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(eventType string) *events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i]
		}
	}
	return nil
}
