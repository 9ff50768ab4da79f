package mongostore

import (
	"context"
	"fmt"
	"time"

	"maidlink/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) CreateApplication(ctx context.Context, app *models.CleanerApplication) error {
	doc := *app
	if doc.Documents == nil {
		doc.Documents = map[models.DocumentType]models.StoredDocument{}
	}
	if _, err := s.coll(applicationsCollection).InsertOne(ctx, &doc); err != nil {
		return fmt.Errorf("failed to create application: %w", translate(err))
	}
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*models.CleanerApplication, error) {
	return s.findApplication(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetApplicationByUser(ctx context.Context, userID string) (*models.CleanerApplication, error) {
	return s.findApplication(ctx, bson.D{{Key: "user_id", Value: userID}})
}

func (s *Store) findApplication(ctx context.Context, filter bson.D) (*models.CleanerApplication, error) {
	var app models.CleanerApplication
	if err := s.coll(applicationsCollection).FindOne(ctx, filter).Decode(&app); err != nil {
		return nil, translate(err)
	}
	if app.Documents == nil {
		app.Documents = map[models.DocumentType]models.StoredDocument{}
	}
	return &app, nil
}

func (s *Store) ListApplications(ctx context.Context, status models.ApplicationStatus, limit int) ([]*models.CleanerApplication, error) {
	q := bson.D{}
	if status != "" {
		q = append(q, bson.E{Key: "status", Value: status})
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	out, err := findAll[models.CleanerApplication](ctx, s.coll(applicationsCollection), q, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return out, nil
}

func (s *Store) PutApplicationDocument(ctx context.Context, id string, doc models.StoredDocument) (*models.CleanerApplication, error) {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "documents." + string(doc.DocumentType), Value: doc},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}

	var app models.CleanerApplication
	err := s.coll(applicationsCollection).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&app)
	if err != nil {
		return nil, fmt.Errorf("failed to store application document: %w", translate(err))
	}
	return &app, nil
}

func (s *Store) UpdateApplicationIf(
	ctx context.Context, id string, guard models.ApplicationGuard, patch models.ApplicationPatch,
) (bool, error) {
	set := bson.D{{Key: "updated_at", Value: time.Now().UTC()}}
	if patch.Status != nil {
		set = append(set, bson.E{Key: "status", Value: *patch.Status})
	}
	if patch.BackgroundCheckID != nil {
		set = append(set, bson.E{Key: "background_check_id", Value: *patch.BackgroundCheckID})
	}
	if patch.BackgroundCheckStatus != nil {
		set = append(set, bson.E{Key: "background_check_status", Value: *patch.BackgroundCheckStatus})
	}
	if patch.BackgroundCheckVerdict != nil {
		set = append(set, bson.E{Key: "background_check_verdict", Value: *patch.BackgroundCheckVerdict})
	}
	if patch.BackgroundCheckResults != nil {
		set = append(set, bson.E{Key: "background_check_results", Value: patch.BackgroundCheckResults})
	}

	var g bson.D
	if len(guard.Statuses) > 0 {
		g = append(g, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: guard.Statuses}}})
	}

	applied, err := s.updateIf(ctx, applicationsCollection, id, g, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return false, fmt.Errorf("failed to update application: %w", err)
	}
	return applied, nil
}
