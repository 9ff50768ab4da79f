package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SyncTask asks for one booking row to be mirrored. The booking is re-read at
// processing time so the sheet always gets the latest state.
type SyncTask struct {
	BookingID string    `json:"booking_id"`
	Attempt   int       `json:"attempt"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type BookingReader interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
}

// SheetsWorker consumes sync tasks and applies them to the booking spreadsheet.
type SheetsWorker struct {
	bookings      BookingReader
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger

	after func(d time.Duration, f func())
}

// NewSheetsWorker builds a worker with sane defaults. redisClient may be nil.
func NewSheetsWorker(bookings BookingReader, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &SheetsWorker{
		bookings:      bookings,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan SyncTask, models.WorkerQueueSize),
		redisQueueKey: "sheets:queue",
		deadLetterKey: "sheets:deadletter",
		pollInterval:  time.Second,
		logger:        logger,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

func (w *SheetsWorker) EnqueueBookingSync(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return errors.New("booking id is required")
	}
	return w.enqueue(ctx, SyncTask{BookingID: bookingID, CreatedAt: time.Now().UTC()})
}

func (w *SheetsWorker) enqueue(ctx context.Context, task SyncTask) error {
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Str("booking_id", task.BookingID).Msg("Redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return fmt.Errorf("sync queue is full, booking %s dropped until next resync", task.BookingID)
	}
}

// Start runs the consume loop until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Sheets worker started")
	defer w.logger.Info().Msg("Sheets worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.queue:
			w.processTask(ctx, task)
			continue
		default:
		}

		if task, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, task)
			continue
		}

		if w.redis == nil {
			select {
			case <-ctx.Done():
				return
			case task := <-w.queue:
				w.processTask(ctx, task)
			case <-time.After(w.pollInterval):
			}
		}
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (SyncTask, bool) {
	if w.redis == nil {
		return SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, w.pollInterval, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("Redis BRPOP failed")
			time.Sleep(w.pollInterval)
		}
		return SyncTask{}, false
	}
	if len(res) != 2 {
		return SyncTask{}, false
	}
	var task SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Failed to decode sync task")
		return SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task SyncTask) {
	booking, err := w.bookings.GetBooking(ctx, task.BookingID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.sheets.UpsertBooking(ctx, booking); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}
	w.logger.Debug().Str("booking_id", task.BookingID).Msg("Booking synced to sheet")
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task SyncTask, cause error) {
	task.Attempt++
	task.LastError = cause.Error()
	if task.Attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	delay := w.retryPolicy.NextDelay(task.Attempt)
	w.logger.Warn().Err(cause).
		Str("booking_id", task.BookingID).
		Int("attempt", task.Attempt).
		Dur("retry_in", delay).
		Msg("Sheet sync failed, scheduling retry")

	w.after(delay, func() {
		if err := w.enqueue(context.WithoutCancel(ctx), task); err != nil {
			w.logger.Error().Err(err).Str("booking_id", task.BookingID).Msg("Failed to requeue sync task")
		}
	})
}

func (w *SheetsWorker) failTask(ctx context.Context, task SyncTask, cause error) {
	task.LastError = cause.Error()
	w.logger.Error().Err(cause).Str("booking_id", task.BookingID).Int("attempt", task.Attempt).Msg("Sheet sync failed permanently")
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, task); err != nil {
		w.logger.Error().Err(err).Str("booking_id", task.BookingID).Msg("Dead letter push failed")
	}
}

func (w *SheetsWorker) pushRedis(ctx context.Context, key string, task SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

// Resync rewrites the whole sheet from the ledger.
func (w *SheetsWorker) Resync(ctx context.Context) error {
	bookings, err := w.bookings.ListBookings(ctx, models.BookingFilter{})
	if err != nil {
		return fmt.Errorf("failed to list bookings: %w", err)
	}
	if err := w.sheets.ReplaceBookingsSheet(ctx, bookings); err != nil {
		return fmt.Errorf("failed to replace bookings sheet: %w", err)
	}
	w.logger.Info().Int("bookings", len(bookings)).Msg("Bookings sheet resynced")
	return nil
}
