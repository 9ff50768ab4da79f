package models

import "time"

// Gateway-side checkout session states. SessionInitiated is ours, the rest come from the gateway.
const (
	SessionInitiated = "initiated"
	SessionOpen      = "open"
	SessionComplete  = "complete"
	SessionExpired   = "expired"
)

type PaymentTransaction struct {
	ID            string        `json:"id" bson:"_id"`
	SessionID     string        `json:"session_id" bson:"session_id"`
	BookingID     string        `json:"booking_id" bson:"booking_id"`
	CustomerID    string        `json:"customer_id" bson:"customer_id"`
	Amount        int64         `json:"amount" bson:"amount"`
	Currency      string        `json:"currency" bson:"currency"`
	Status        string        `json:"status" bson:"status"`
	PaymentStatus PaymentStatus `json:"payment_status" bson:"payment_status"`
	CreatedAt     time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" bson:"updated_at"`
}

type PaymentFilter struct {
	PaymentStatus PaymentStatus
	CreatedBefore time.Time
	Limit         int
}

// CheckoutRequest is what the gateway needs to open a hosted checkout page.
type CheckoutRequest struct {
	BookingID   string
	Amount      int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// GatewaySessionStatus is a session as observed at the gateway, already normalized.
type GatewaySessionStatus struct {
	SessionID     string        `json:"session_id"`
	Status        string        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	AmountTotal   int64         `json:"amount_total"`
	Currency      string        `json:"currency"`
	Metadata      map[string]string
}

type WebhookEvent struct {
	ID            string
	Type          string
	SessionID     string
	Status        string
	PaymentStatus PaymentStatus
}
