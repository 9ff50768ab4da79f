package mongostore

import (
	"context"
	"fmt"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) CreateRating(ctx context.Context, r *models.Rating) error {
	if _, err := s.coll(ratingsCollection).InsertOne(ctx, r); err != nil {
		return fmt.Errorf("failed to create rating: %w", translate(err))
	}
	return nil
}

func (s *Store) ListRatingsByCleaner(ctx context.Context, cleanerID string) ([]*models.Rating, error) {
	out, err := findAll[models.Rating](ctx, s.coll(ratingsCollection),
		bson.D{{Key: "cleaner_id", Value: cleanerID}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	return out, nil
}

func (s *Store) GetCleaner(ctx context.Context, id string) (*models.Cleaner, error) {
	var c models.Cleaner
	if err := s.coll(cleanersCollection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) ListCleaners(ctx context.Context, onlyAvailable bool) ([]*models.Cleaner, error) {
	q := bson.D{}
	if onlyAvailable {
		q = append(q, bson.E{Key: "available", Value: true})
	}
	out, err := findAll[models.Cleaner](ctx, s.coll(cleanersCollection), q,
		options.Find().SetSort(bson.D{{Key: "rating", Value: -1}, {Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list cleaners: %w", err)
	}
	return out, nil
}

// UpsertCleaner refreshes the profile. The rating aggregate is only written on insert.
func (s *Store) UpsertCleaner(ctx context.Context, c *models.Cleaner) error {
	specialties := c.Specialties
	if specialties == nil {
		specialties = []string{}
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "name", Value: c.Name},
			{Key: "experience_years", Value: c.ExperienceYears},
			{Key: "specialties", Value: specialties},
			{Key: "avatar_url", Value: c.AvatarURL},
			{Key: "available", Value: c.Available},
			{Key: "updated_at", Value: time.Now().UTC()},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "rating", Value: c.Rating},
			{Key: "rating_count", Value: c.RatingCount},
		}},
	}
	_, err := s.coll(cleanersCollection).UpdateOne(ctx, bson.D{{Key: "_id", Value: c.ID}}, update,
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert cleaner: %w", err)
	}
	return nil
}

func (s *Store) UpdateCleanerRating(ctx context.Context, id string, rating float64, count int) (bool, error) {
	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "rating_count", Value: bson.D{{Key: "$lte", Value: count}}},
	}
	res, err := s.coll(cleanersCollection).UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: bson.D{
		{Key: "rating", Value: rating},
		{Key: "rating_count", Value: count},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}})
	if err != nil {
		return false, fmt.Errorf("failed to update cleaner rating: %w", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	n, err := s.coll(cleanersCollection).CountDocuments(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, fmt.Errorf("failed to check cleaner: %w", err)
	}
	if n == 0 {
		return false, domain.ErrRecordNotFound
	}
	return false, nil
}
