package mongostore

import (
	"context"
	"fmt"
	"time"

	"maidlink/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	if _, err := s.coll(bookingsCollection).InsertOne(ctx, b); err != nil {
		return fmt.Errorf("failed to create booking: %w", translate(err))
	}
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := s.coll(bookingsCollection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&b); err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (s *Store) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	q := bson.D{}
	if filter.Status != "" {
		q = append(q, bson.E{Key: "status", Value: filter.Status})
	}
	if filter.CustomerID != "" {
		q = append(q, bson.E{Key: "customer_id", Value: filter.CustomerID})
	}
	if filter.CleanerID != "" {
		q = append(q, bson.E{Key: "cleaner_id", Value: filter.CleanerID})
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	out, err := findAll[models.Booking](ctx, s.coll(bookingsCollection), q, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateBookingIf(ctx context.Context, id string, guard models.BookingGuard, patch models.BookingPatch) (bool, error) {
	set := bson.D{{Key: "updated_at", Value: time.Now().UTC()}}
	if patch.Status != nil {
		set = append(set, bson.E{Key: "status", Value: *patch.Status})
	}
	if patch.PaymentStatus != nil {
		set = append(set, bson.E{Key: "payment_status", Value: *patch.PaymentStatus})
	}
	if patch.PaidSessionID != nil {
		set = append(set, bson.E{Key: "paid_session_id", Value: *patch.PaidSessionID})
	}
	if patch.CleanerResponse != nil {
		set = append(set, bson.E{Key: "cleaner_response", Value: patch.CleanerResponse})
	}

	var g bson.D
	if len(guard.Statuses) > 0 {
		g = append(g, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: guard.Statuses}}})
	}
	if guard.PaymentStatusNot != "" {
		g = append(g, bson.E{Key: "payment_status", Value: bson.D{{Key: "$ne", Value: guard.PaymentStatusNot}}})
	}
	if guard.CleanerID != "" {
		g = append(g, bson.E{Key: "cleaner_id", Value: guard.CleanerID})
	}
	if guard.CustomerID != "" {
		g = append(g, bson.E{Key: "customer_id", Value: guard.CustomerID})
	}

	applied, err := s.updateIf(ctx, bookingsCollection, id, g, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return false, fmt.Errorf("failed to update booking: %w", err)
	}
	return applied, nil
}
