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

const paymentColumns = `id, session_id, booking_id, customer_id, amount, currency, status, payment_status, created_at, updated_at`

func (db *DB) CreatePayment(ctx context.Context, tx *models.PaymentTransaction) error {
	query := `INSERT INTO payment_transactions (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		tx.ID, tx.SessionID, tx.BookingID, tx.CustomerID, tx.Amount, tx.Currency,
		tx.Status, tx.PaymentStatus, tx.CreatedAt.UTC(), tx.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create payment transaction: %w", domain.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

func (db *DB) GetPaymentBySession(ctx context.Context, sessionID string) (*models.PaymentTransaction, error) {
	row := db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payment_transactions WHERE session_id = ?`, sessionID)
	tx, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}
	return tx, nil
}

func (db *DB) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.PaymentTransaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.PaymentStatus != "" {
		where = append(where, "payment_status = ?")
		args = append(args, filter.PaymentStatus)
	}
	if !filter.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, filter.CreatedBefore.UTC())
	}

	query := `SELECT ` + paymentColumns + ` FROM payment_transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.PaymentTransaction
	for rows.Next() {
		tx, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// UpdatePaymentStatus records the latest gateway observation. A stored paid status is sticky.
func (db *DB) UpdatePaymentStatus(
	ctx context.Context, sessionID, status string, paymentStatus models.PaymentStatus,
) (*models.PaymentTransaction, error) {
	query := `UPDATE payment_transactions
		SET status = ?,
		    payment_status = CASE WHEN payment_status = ? THEN payment_status ELSE ? END,
		    updated_at = ?
		WHERE session_id = ?`
	res, err := db.ExecContext(ctx, query, status, models.PaymentPaid, paymentStatus, time.Now().UTC(), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrRecordNotFound
	}
	return db.GetPaymentBySession(ctx, sessionID)
}

func scanPayment(row rowScanner) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := row.Scan(
		&tx.ID, &tx.SessionID, &tx.BookingID, &tx.CustomerID, &tx.Amount, &tx.Currency,
		&tx.Status, &tx.PaymentStatus, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
