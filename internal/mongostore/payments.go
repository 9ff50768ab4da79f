package mongostore

import (
	"context"
	"fmt"
	"time"

	"maidlink/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) CreatePayment(ctx context.Context, tx *models.PaymentTransaction) error {
	if _, err := s.coll(paymentsCollection).InsertOne(ctx, tx); err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", translate(err))
	}
	return nil
}

func (s *Store) GetPaymentBySession(ctx context.Context, sessionID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := s.coll(paymentsCollection).FindOne(ctx, bson.D{{Key: "session_id", Value: sessionID}}).Decode(&tx)
	if err != nil {
		return nil, translate(err)
	}
	return &tx, nil
}

func (s *Store) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.PaymentTransaction, error) {
	q := bson.D{}
	if filter.PaymentStatus != "" {
		q = append(q, bson.E{Key: "payment_status", Value: filter.PaymentStatus})
	}
	if !filter.CreatedBefore.IsZero() {
		q = append(q, bson.E{Key: "created_at", Value: bson.D{{Key: "$lt", Value: filter.CreatedBefore.UTC()}}})
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	out, err := findAll[models.PaymentTransaction](ctx, s.coll(paymentsCollection), q, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment transactions: %w", err)
	}
	return out, nil
}

// UpdatePaymentStatus uses an aggregation-pipeline update so that a stored paid
// status survives any later observation within the same write.
func (s *Store) UpdatePaymentStatus(
	ctx context.Context, sessionID, status string, paymentStatus models.PaymentStatus,
) (*models.PaymentTransaction, error) {
	keepPaid := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$payment_status", models.PaymentPaid}}},
		"$payment_status",
		paymentStatus,
	}}}
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "status", Value: status},
		{Key: "payment_status", Value: keepPaid},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}}

	var tx models.PaymentTransaction
	err := s.coll(paymentsCollection).FindOneAndUpdate(ctx,
		bson.D{{Key: "session_id", Value: sessionID}},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&tx)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment transaction: %w", translate(err))
	}
	return &tx, nil
}
