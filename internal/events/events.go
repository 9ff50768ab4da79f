package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

const (
	EventBookingCreated  = "booking_created"
	EventBookingPaid     = "booking_paid"
	EventBookingAssigned = "booking_assigned"
	EventBookingAccepted = "booking_accepted"
	EventBookingDeclined = "booking_declined"
	EventBookingStarted  = "booking_started"
	EventBookingDone     = "booking_completed"
	EventBookingCanceled = "booking_cancelled"

	EventPaymentFailed        = "payment_failed"
	EventPaymentOutOfSequence = "payment_out_of_sequence"

	EventApplicationSubmitted = "application_submitted"
	EventDocumentsSubmitted   = "documents_submitted"
	EventCheckStarted         = "background_check_started"
	EventApplicationApproved  = "application_approved"
	EventApplicationRejected  = "application_rejected"
	EventCheckNeedsAttention  = "background_check_failed"
	EventApplicationSuspended = "application_suspended"

	EventRatingSubmitted = "rating_submitted"
)

// BookingEvents lists every booking lifecycle event type.
var BookingEvents = []string{
	EventBookingCreated, EventBookingPaid, EventBookingAssigned, EventBookingAccepted,
	EventBookingDeclined, EventBookingStarted, EventBookingDone, EventBookingCanceled,
	EventPaymentOutOfSequence,
}

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID     string    `json:"booking_id"`
	CustomerID    string    `json:"customer_id"`
	CleanerID     string    `json:"cleaner_id"`
	CleanerName   string    `json:"cleaner_name,omitempty"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	TotalAmount   int64     `json:"total_amount"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	SessionID     string    `json:"session_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

type ApplicationEventPayload struct {
	ApplicationID  string `json:"application_id"`
	UserID         string `json:"user_id"`
	ApplicantName  string `json:"applicant_name"`
	Status         string `json:"status"`
	CheckID        string `json:"check_id,omitempty"`
	CheckStatus    string `json:"check_status,omitempty"`
	ProviderStatus string `json:"provider_status,omitempty"`
	Verdict        string `json:"verdict,omitempty"`
}

type RatingEventPayload struct {
	BookingID string  `json:"booking_id"`
	CleanerID string  `json:"cleaner_id"`
	Score     int     `json:"score"`
	Average   float64 `json:"average"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for one or more event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish runs every subscriber synchronously and joins their errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
