package models

import "time"

const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

type Rating struct {
	ID         string    `json:"id" bson:"_id"`
	BookingID  string    `json:"booking_id" bson:"booking_id"`
	CleanerID  string    `json:"cleaner_id" bson:"cleaner_id"`
	CustomerID string    `json:"customer_id" bson:"customer_id"`
	Score      int       `json:"score" bson:"score"`
	Review     string    `json:"review,omitempty" bson:"review,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}
