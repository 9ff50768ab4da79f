package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/models"
)

const cleanerColumns = `id, name, rating, rating_count, experience_years, specialties, avatar_url, available, updated_at`

func (db *DB) GetCleaner(ctx context.Context, id string) (*models.Cleaner, error) {
	row := db.QueryRowContext(ctx, `SELECT `+cleanerColumns+` FROM cleaners WHERE id = ?`, id)
	c, err := scanCleaner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cleaner: %w", err)
	}
	return c, nil
}

func (db *DB) ListCleaners(ctx context.Context, onlyAvailable bool) ([]*models.Cleaner, error) {
	query := `SELECT ` + cleanerColumns + ` FROM cleaners`
	if onlyAvailable {
		query += ` WHERE available = 1`
	}
	query += ` ORDER BY rating DESC, name ASC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cleaners: %w", err)
	}
	defer rows.Close()

	var out []*models.Cleaner
	for rows.Next() {
		c, err := scanCleaner(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cleaner: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCleaner inserts or refreshes a cleaner's profile. The rating aggregate of an
// existing row is left alone.
func (db *DB) UpsertCleaner(ctx context.Context, c *models.Cleaner) error {
	specialties, err := marshalJSON(nonNil(c.Specialties))
	if err != nil {
		return fmt.Errorf("failed to encode specialties: %w", err)
	}
	query := `INSERT INTO cleaners (` + cleanerColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			experience_years = excluded.experience_years,
			specialties = excluded.specialties,
			avatar_url = excluded.avatar_url,
			available = excluded.available,
			updated_at = excluded.updated_at`
	_, err = db.ExecContext(ctx, query,
		c.ID, c.Name, c.Rating, c.RatingCount, c.ExperienceYears, specialties, c.AvatarURL, c.Available, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cleaner: %w", err)
	}
	return nil
}

func (db *DB) UpdateCleanerRating(ctx context.Context, id string, rating float64, count int) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE cleaners SET rating = ?, rating_count = ?, updated_at = ? WHERE id = ? AND rating_count <= ?`,
		rating, count, time.Now().UTC(), id, count)
	if err != nil {
		return false, fmt.Errorf("failed to update cleaner rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM cleaners WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrRecordNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check cleaner: %w", err)
	}
	return false, nil
}

func scanCleaner(row rowScanner) (*models.Cleaner, error) {
	var (
		c           models.Cleaner
		specialties string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Rating, &c.RatingCount, &c.ExperienceYears, &specialties,
		&c.AvatarURL, &c.Available, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(specialties, &c.Specialties); err != nil {
		return nil, fmt.Errorf("failed to decode specialties: %w", err)
	}
	return &c, nil
}
