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

const bookingColumns = `id, service_kind, cleaner_id, cleaner_name, customer_id, scheduled_at, hours,
	service_area, address, customer_name, customer_email, customer_phone, special_instructions,
	total_amount, currency, status, payment_status, paid_session_id, cleaner_response, created_at, updated_at`

func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	response := ""
	if b.CleanerResponse != nil {
		raw, err := marshalJSON(b.CleanerResponse)
		if err != nil {
			return fmt.Errorf("failed to encode cleaner response: %w", err)
		}
		response = raw
	}

	query := `INSERT INTO bookings (` + bookingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		b.ID, b.ServiceKind, b.CleanerID, b.CleanerName, b.CustomerID, b.ScheduledAt.UTC(), b.Hours,
		b.ServiceArea, b.Address, b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.SpecialInstructions,
		b.TotalAmount, b.Currency, b.Status, b.PaymentStatus, b.PaidSessionID, response,
		b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create booking: %w", domain.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.CleanerID != "" {
		where = append(where, "cleaner_id = ?")
		args = append(args, filter.CleanerID)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scheduled_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateBookingIf writes patch only when the row still satisfies guard.
func (db *DB) UpdateBookingIf(ctx context.Context, id string, guard models.BookingGuard, patch models.BookingPatch) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.PaymentStatus != nil {
		sets = append(sets, "payment_status = ?")
		args = append(args, *patch.PaymentStatus)
	}
	if patch.PaidSessionID != nil {
		sets = append(sets, "paid_session_id = ?")
		args = append(args, *patch.PaidSessionID)
	}
	if patch.CleanerResponse != nil {
		raw, err := marshalJSON(patch.CleanerResponse)
		if err != nil {
			return false, fmt.Errorf("failed to encode cleaner response: %w", err)
		}
		sets = append(sets, "cleaner_response = ?")
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
	if guard.PaymentStatusNot != "" {
		where = append(where, "payment_status != ?")
		args = append(args, guard.PaymentStatusNot)
	}
	if guard.CleanerID != "" {
		where = append(where, "cleaner_id = ?")
		args = append(args, guard.CleanerID)
	}
	if guard.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, guard.CustomerID)
	}

	query := "UPDATE bookings SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	found, err := db.exists(ctx, "bookings", id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, domain.ErrRecordNotFound
	}
	return false, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b        models.Booking
		response string
	)
	err := row.Scan(
		&b.ID, &b.ServiceKind, &b.CleanerID, &b.CleanerName, &b.CustomerID, &b.ScheduledAt, &b.Hours,
		&b.ServiceArea, &b.Address, &b.CustomerName, &b.CustomerEmail, &b.CustomerPhone, &b.SpecialInstructions,
		&b.TotalAmount, &b.Currency, &b.Status, &b.PaymentStatus, &b.PaidSessionID, &response,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if response != "" {
		b.CleanerResponse = &models.CleanerResponse{}
		if err := unmarshalJSON(response, b.CleanerResponse); err != nil {
			return nil, fmt.Errorf("failed to decode cleaner response: %w", err)
		}
	}
	return &b, nil
}
