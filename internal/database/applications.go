package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"maidlink/internal/domain"
	"maidlink/internal/models"
)

const applicationColumns = `id, user_id, status, personal_info, hourly_rate, service_areas, specialties, documents,
	background_check_id, background_check_status, background_check_verdict, background_check_results,
	created_at, updated_at`

func (db *DB) CreateApplication(ctx context.Context, app *models.CleanerApplication) error {
	personal, err := marshalJSON(app.PersonalInfo)
	if err != nil {
		return fmt.Errorf("failed to encode personal info: %w", err)
	}
	areas, err := marshalJSON(nonNil(app.ServiceAreas))
	if err != nil {
		return fmt.Errorf("failed to encode service areas: %w", err)
	}
	specialties, err := marshalJSON(nonNil(app.Specialties))
	if err != nil {
		return fmt.Errorf("failed to encode specialties: %w", err)
	}
	docs := app.Documents
	if docs == nil {
		docs = map[models.DocumentType]models.StoredDocument{}
	}
	documents, err := marshalJSON(docs)
	if err != nil {
		return fmt.Errorf("failed to encode documents: %w", err)
	}

	query := `INSERT INTO cleaner_applications (
				id, user_id, status, personal_info, hourly_rate, service_areas, specialties, documents,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, query,
		app.ID, app.UserID, app.Status, personal, app.HourlyRate, areas, specialties, documents,
		app.CreatedAt.UTC(), app.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create application: %w", domain.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

func (db *DB) GetApplication(ctx context.Context, id string) (*models.CleanerApplication, error) {
	return db.getApplicationBy(ctx, "id", id)
}

func (db *DB) GetApplicationByUser(ctx context.Context, userID string) (*models.CleanerApplication, error) {
	return db.getApplicationBy(ctx, "user_id", userID)
}

func (db *DB) getApplicationBy(ctx context.Context, column, value string) (*models.CleanerApplication, error) {
	row := db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM cleaner_applications WHERE `+column+` = ?`, value)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

func (db *DB) ListApplications(ctx context.Context, status models.ApplicationStatus, limit int) ([]*models.CleanerApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM cleaner_applications`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.CleanerApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

// PutApplicationDocument sets one key of the documents map in place, so concurrent uploads of
// different types never overwrite each other.
func (db *DB) PutApplicationDocument(ctx context.Context, id string, doc models.StoredDocument) (*models.CleanerApplication, error) {
	raw, err := marshalJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	query := `UPDATE cleaner_applications
		SET documents = json_set(documents, '$.' || ?, json(?)), updated_at = ?
		WHERE id = ?`
	res, err := db.ExecContext(ctx, query, string(doc.DocumentType), raw, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to store application document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrRecordNotFound
	}
	return db.GetApplication(ctx, id)
}

func (db *DB) UpdateApplicationIf(
	ctx context.Context, id string, guard models.ApplicationGuard, patch models.ApplicationPatch,
) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.BackgroundCheckID != nil {
		sets = append(sets, "background_check_id = ?")
		args = append(args, *patch.BackgroundCheckID)
	}
	if patch.BackgroundCheckStatus != nil {
		sets = append(sets, "background_check_status = ?")
		args = append(args, *patch.BackgroundCheckStatus)
	}
	if patch.BackgroundCheckVerdict != nil {
		sets = append(sets, "background_check_verdict = ?")
		args = append(args, *patch.BackgroundCheckVerdict)
	}
	if patch.BackgroundCheckResults != nil {
		raw, err := marshalJSON(patch.BackgroundCheckResults)
		if err != nil {
			return false, fmt.Errorf("failed to encode check results: %w", err)
		}
		sets = append(sets, "background_check_results = ?")
		args = append(args, raw)
	}

	where := []string{"id = ?"}
	args = append(args, id)
	if len(guard.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(guard.Statuses))+")")
		for _, s := range guard.Statuses {
			args = append(args, s)
		}
	}

	query := "UPDATE cleaner_applications SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	found, err := db.exists(ctx, "cleaner_applications", id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, domain.ErrRecordNotFound
	}
	return false, nil
}

func scanApplication(row rowScanner) (*models.CleanerApplication, error) {
	var (
		app                                     models.CleanerApplication
		personal, areas, specialties, documents string
		checkStatus, checkVerdict, checkResults string
	)
	err := row.Scan(
		&app.ID, &app.UserID, &app.Status, &personal, &app.HourlyRate, &areas, &specialties, &documents,
		&app.BackgroundCheckID, &checkStatus, &checkVerdict, &checkResults,
		&app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	app.BackgroundCheckStatus = models.VerificationStatus(checkStatus)
	app.BackgroundCheckVerdict = models.Verdict(checkVerdict)

	if err := unmarshalJSON(personal, &app.PersonalInfo); err != nil {
		return nil, fmt.Errorf("failed to decode personal info: %w", err)
	}
	if err := unmarshalJSON(areas, &app.ServiceAreas); err != nil {
		return nil, fmt.Errorf("failed to decode service areas: %w", err)
	}
	if err := unmarshalJSON(specialties, &app.Specialties); err != nil {
		return nil, fmt.Errorf("failed to decode specialties: %w", err)
	}
	app.Documents = map[models.DocumentType]models.StoredDocument{}
	if err := unmarshalJSON(documents, &app.Documents); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	if err := unmarshalJSON(checkResults, &app.BackgroundCheckResults); err != nil {
		return nil, fmt.Errorf("failed to decode check results: %w", err)
	}
	return &app, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
