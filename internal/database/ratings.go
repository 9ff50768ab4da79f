package database

import (
	"context"
	"fmt"

	"maidlink/internal/domain"
	"maidlink/internal/models"
)

func (db *DB) CreateRating(ctx context.Context, r *models.Rating) error {
	query := `INSERT INTO ratings (id, booking_id, cleaner_id, customer_id, score, review, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, r.ID, r.BookingID, r.CleanerID, r.CustomerID, r.Score, r.Review, r.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create rating: %w", domain.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create rating: %w", err)
	}
	return nil
}

func (db *DB) ListRatingsByCleaner(ctx context.Context, cleanerID string) ([]*models.Rating, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, booking_id, cleaner_id, customer_id, score, review, created_at
		FROM ratings WHERE cleaner_id = ? ORDER BY created_at ASC`, cleanerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	var out []*models.Rating
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.ID, &r.BookingID, &r.CleanerID, &r.CustomerID, &r.Score, &r.Review, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
