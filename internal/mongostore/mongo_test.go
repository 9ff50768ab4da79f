package mongostore

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"maidlink/internal/config"
	"maidlink/internal/domain"
	"maidlink/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ domain.Ledger = (*Store)(nil)

func setupStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	logger := zerolog.New(io.Discard)
	s, err := New(context.Background(), config.MongoConfig{
		URI:            uri,
		Database:       "maidlink_test_" + uuid.NewString()[:8],
		ConnectTimeout: 10 * time.Second,
	}, &logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func ptr[T any](v T) *T { return &v }

func TestStore_BookingGuards(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	b := &models.Booking{
		ID:            "b1",
		ServiceKind:   models.ServiceRegularCleaning,
		CustomerID:    "cust-1",
		ScheduledAt:   now.Add(24 * time.Hour),
		Hours:         2,
		TotalAmount:   8000,
		Currency:      "usd",
		Status:        models.BookingPendingPayment,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, s.CreateBooking(ctx, b))

	guard := models.BookingGuard{
		Statuses:         []models.BookingStatus{models.BookingPendingPayment},
		PaymentStatusNot: models.PaymentPaid,
	}
	patch := models.BookingPatch{
		Status:        ptr(models.BookingConfirmed),
		PaymentStatus: ptr(models.PaymentPaid),
		PaidSessionID: ptr("cs_1"),
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.UpdateBookingIf(ctx, "b1", guard, patch)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, applied)

	got, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, "cs_1", got.PaidSessionID)

	_, err = s.UpdateBookingIf(ctx, "missing", guard, patch)
	assert.True(t, errors.Is(err, domain.ErrRecordNotFound))

	list, err := s.ListBookings(ctx, models.BookingFilter{CustomerID: "cust-1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_PaymentsStickyPaid(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tx := &models.PaymentTransaction{
		ID: "t1", SessionID: "cs_1", BookingID: "b1", Amount: 8000, Currency: "usd",
		Status: models.SessionInitiated, PaymentStatus: models.PaymentPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreatePayment(ctx, tx))
	dup := *tx
	dup.ID = "t2"
	assert.True(t, errors.Is(s.CreatePayment(ctx, &dup), domain.ErrDuplicateKey))

	got, err := s.UpdatePaymentStatus(ctx, "cs_1", models.SessionComplete, models.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)

	got, err = s.UpdatePaymentStatus(ctx, "cs_1", models.SessionExpired, models.PaymentFailed)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, models.SessionExpired, got.Status)

	_, err = s.UpdatePaymentStatus(ctx, "cs_missing", "open", models.PaymentPending)
	assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
}

func TestStore_ApplicationDocuments(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	app := &models.CleanerApplication{
		ID: "a1", UserID: "u1", Status: models.ApplicationDocumentsRequired, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateApplication(ctx, app))
	dup := *app
	dup.ID = "a2"
	assert.True(t, errors.Is(s.CreateApplication(ctx, &dup), domain.ErrDuplicateKey))

	types := []models.DocumentType{
		models.DocumentIDFront, models.DocumentIDBack, models.DocumentSSNCard,
		models.DocumentWorkPermit, models.DocumentResume,
	}
	var wg sync.WaitGroup
	for _, dt := range types {
		wg.Add(1)
		go func(dt models.DocumentType) {
			defer wg.Done()
			_, err := s.PutApplicationDocument(ctx, "a1", models.StoredDocument{FileID: string(dt), DocumentType: dt})
			assert.NoError(t, err)
		}(dt)
	}
	wg.Wait()

	got, err := s.GetApplication(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, got.Documents, len(types))
	assert.True(t, got.HasRequiredDocuments())

	ok, err := s.UpdateApplicationIf(ctx, "a1",
		models.ApplicationGuard{Statuses: []models.ApplicationStatus{models.ApplicationDocumentsRequired}},
		models.ApplicationPatch{Status: ptr(models.ApplicationDocumentsSubmitted)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateApplicationIf(ctx, "a1",
		models.ApplicationGuard{Statuses: []models.ApplicationStatus{models.ApplicationDocumentsRequired}},
		models.ApplicationPatch{Status: ptr(models.ApplicationDocumentsSubmitted)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_RatingsAndCleaners(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCleaner(ctx, &models.Cleaner{ID: "c1", Name: "Maria", Rating: 4.9, Available: true}))
	applied, err := s.UpdateCleanerRating(ctx, "c1", 4.0, 3)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.UpdateCleanerRating(ctx, "c1", 5.0, 2)
	require.NoError(t, err)
	assert.False(t, applied)
	require.NoError(t, s.UpsertCleaner(ctx, &models.Cleaner{ID: "c1", Name: "Maria S.", Rating: 4.9, Available: true}))

	c, err := s.GetCleaner(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Maria S.", c.Name)
	assert.Equal(t, 4.0, c.Rating)
	assert.Equal(t, 3, c.RatingCount)

	r := &models.Rating{ID: "r1", BookingID: "b1", CleanerID: "c1", CustomerID: "u1", Score: 5, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateRating(ctx, r))
	r2 := *r
	r2.ID = "r2"
	assert.True(t, errors.Is(s.CreateRating(ctx, &r2), domain.ErrDuplicateKey))

	ratings, err := s.ListRatingsByCleaner(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, ratings, 1)

	_, err = s.UpdateCleanerRating(ctx, "nobody", 1, 1)
	assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
}
