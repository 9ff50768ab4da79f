package models

import "time"

type BookingStatus string

const (
	BookingPendingPayment    BookingStatus = "pending_payment"
	BookingConfirmed         BookingStatus = "confirmed"
	BookingPendingAcceptance BookingStatus = "pending_acceptance"
	BookingDeclined          BookingStatus = "declined"
	BookingInProgress        BookingStatus = "in_progress"
	BookingCompleted         BookingStatus = "completed"
	BookingCancelled         BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPendingPayment, BookingConfirmed, BookingPendingAcceptance, BookingDeclined,
		BookingInProgress, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// CleanerResponse is the assigned cleaner's answer to a job offer.
type CleanerResponse struct {
	Accepted    bool      `json:"accepted" bson:"accepted"`
	Reason      string    `json:"reason,omitempty" bson:"reason,omitempty"`
	RespondedAt time.Time `json:"responded_at" bson:"responded_at"`
}

type Booking struct {
	ID                  string           `json:"id" bson:"_id"`
	ServiceKind         ServiceKind      `json:"service_kind" bson:"service_kind"`
	CleanerID           string           `json:"cleaner_id" bson:"cleaner_id"`
	CleanerName         string           `json:"cleaner_name" bson:"cleaner_name"`
	CustomerID          string           `json:"customer_id" bson:"customer_id"`
	ScheduledAt         time.Time        `json:"scheduled_at" bson:"scheduled_at"`
	Hours               int              `json:"hours" bson:"hours"`
	ServiceArea         string           `json:"service_area" bson:"service_area"`
	Address             string           `json:"address" bson:"address"`
	CustomerName        string           `json:"customer_name" bson:"customer_name"`
	CustomerEmail       string           `json:"customer_email" bson:"customer_email"`
	CustomerPhone       string           `json:"customer_phone" bson:"customer_phone"`
	SpecialInstructions string           `json:"special_instructions,omitempty" bson:"special_instructions,omitempty"`
	TotalAmount         int64            `json:"total_amount" bson:"total_amount"` // minor units
	Currency            string           `json:"currency" bson:"currency"`
	Status              BookingStatus    `json:"status" bson:"status"`
	PaymentStatus       PaymentStatus    `json:"payment_status" bson:"payment_status"`
	PaidSessionID       string           `json:"paid_session_id,omitempty" bson:"paid_session_id,omitempty"`
	CleanerResponse     *CleanerResponse `json:"cleaner_response,omitempty" bson:"cleaner_response,omitempty"`
	CreatedAt           time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" bson:"updated_at"`
}

// BookingGuard is the precondition of a conditional booking update.
// Zero-valued fields are not checked.
type BookingGuard struct {
	Statuses         []BookingStatus
	PaymentStatusNot PaymentStatus
	CleanerID        string
	CustomerID       string
}

// BookingPatch lists the fields a conditional update writes. Nil fields are left untouched.
type BookingPatch struct {
	Status          *BookingStatus
	PaymentStatus   *PaymentStatus
	PaidSessionID   *string
	CleanerResponse *CleanerResponse
}

type BookingFilter struct {
	Status     BookingStatus
	CustomerID string
	CleanerID  string
	Limit      int
}
