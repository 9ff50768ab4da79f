// Package mongostore is the document-database implementation of the ledger.
// Every transition is one UpdateOne whose filter carries the guard.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"maidlink/internal/config"
	"maidlink/internal/domain"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	bookingsCollection     = "bookings"
	paymentsCollection     = "payment_transactions"
	applicationsCollection = "cleaner_applications"
	ratingsCollection      = "ratings"
	cleanersCollection     = "cleaners"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zerolog.Logger
}

func New(ctx context.Context, cfg config.MongoConfig, logger *zerolog.Logger) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(cfg.Database), logger: logger}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info().Str("database", cfg.Database).Msg("Mongo ledger connected")
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		bookingsCollection: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}}},
			{Keys: bson.D{{Key: "cleaner_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		paymentsCollection: {
			{Keys: bson.D{{Key: "session_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "payment_status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		applicationsCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		ratingsCollection: {
			{Keys: bson.D{{Key: "booking_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "cleaner_id", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the whole database. Tests only.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func translate(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrRecordNotFound
	case mongo.IsDuplicateKeyError(err):
		return domain.ErrDuplicateKey
	}
	return err
}

// updateIf runs a guarded UpdateOne. A miss is told apart from a missing
// document with a follow-up count on the id alone.
func (s *Store) updateIf(ctx context.Context, coll, id string, guard bson.D, update bson.D) (bool, error) {
	filter := append(bson.D{{Key: "_id", Value: id}}, guard...)
	res, err := s.coll(coll).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	n, err := s.coll(coll).CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, domain.ErrRecordNotFound
	}
	return false, nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter bson.D, opts *options.FindOptions) ([]*T, error) {
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*T
	for cur.Next(ctx) {
		var v T
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}
