package domain

import (
	"context"
	"time"

	"maidlink/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Ledger is the durable store. Every Update*If call is a single conditional write:
// it reports false, nil when the guard did not match.
type Ledger interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	UpdateBookingIf(ctx context.Context, id string, guard models.BookingGuard, patch models.BookingPatch) (bool, error)

	CreatePayment(ctx context.Context, tx *models.PaymentTransaction) error
	GetPaymentBySession(ctx context.Context, sessionID string) (*models.PaymentTransaction, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.PaymentTransaction, error)
	UpdatePaymentStatus(ctx context.Context, sessionID, status string, paymentStatus models.PaymentStatus) (*models.PaymentTransaction, error)

	CreateApplication(ctx context.Context, app *models.CleanerApplication) error
	GetApplication(ctx context.Context, id string) (*models.CleanerApplication, error)
	GetApplicationByUser(ctx context.Context, userID string) (*models.CleanerApplication, error)
	ListApplications(ctx context.Context, status models.ApplicationStatus, limit int) ([]*models.CleanerApplication, error)
	PutApplicationDocument(ctx context.Context, id string, doc models.StoredDocument) (*models.CleanerApplication, error)
	UpdateApplicationIf(ctx context.Context, id string, guard models.ApplicationGuard, patch models.ApplicationPatch) (bool, error)

	CreateRating(ctx context.Context, rating *models.Rating) error
	ListRatingsByCleaner(ctx context.Context, cleanerID string) ([]*models.Rating, error)

	GetCleaner(ctx context.Context, id string) (*models.Cleaner, error)
	ListCleaners(ctx context.Context, onlyAvailable bool) ([]*models.Cleaner, error)
	UpsertCleaner(ctx context.Context, cleaner *models.Cleaner) error
	// UpdateCleanerRating stores an aggregate computed over count ratings unless one
	// computed over more ratings is already stored.
	UpdateCleanerRating(ctx context.Context, id string, rating float64, count int) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// StateRepository holds short-lived data: simulated check records and rate-limit counters.
type StateRepository interface {
	SaveCheck(ctx context.Context, rec *models.CheckRecord) error
	GetCheck(ctx context.Context, checkID string) (*models.CheckRecord, error)
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type PaymentGateway interface {
	CreateSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error)
	GetSessionStatus(ctx context.Context, sessionID string) (*models.GatewaySessionStatus, error)
	ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error)
}

type VerificationProvider interface {
	Initiate(ctx context.Context, applicant models.Applicant) (*models.CheckInitiation, error)
	GetStatus(ctx context.Context, checkID string) (*models.CheckResult, error)
}

type FileStore interface {
	Store(ctx context.Context, upload models.DocumentUpload) (*models.StoredDocument, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramService is the slice of the Bot API the operator bot drives.
type TelegramService interface {
	TelegramSender
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetSelf() tgbotapi.User
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error
}

type SyncWorker interface {
	EnqueueBookingSync(ctx context.Context, bookingID string) error
}
