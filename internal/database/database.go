package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the SQLite-backed ledger.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

type rowScanner interface {
	Scan(dest ...any) error
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	inMemory := path == ":memory:"
	dsn := path
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every new connection to :memory: is a fresh empty database
	if inMemory {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Ledger database initialized")
	return &DB{DB: sqlDB, path: path, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cleaners (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            rating REAL NOT NULL DEFAULT 0,
            rating_count INTEGER NOT NULL DEFAULT 0,
            experience_years INTEGER NOT NULL DEFAULT 0,
            specialties TEXT NOT NULL DEFAULT '[]',
            avatar_url TEXT NOT NULL DEFAULT '',
            available BOOLEAN NOT NULL DEFAULT 1,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            service_kind TEXT NOT NULL,
            cleaner_id TEXT NOT NULL,
            cleaner_name TEXT NOT NULL,
            customer_id TEXT NOT NULL,
            scheduled_at DATETIME NOT NULL,
            hours INTEGER NOT NULL,
            service_area TEXT NOT NULL,
            address TEXT NOT NULL,
            customer_name TEXT NOT NULL,
            customer_email TEXT NOT NULL,
            customer_phone TEXT NOT NULL,
            special_instructions TEXT NOT NULL DEFAULT '',
            total_amount INTEGER NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            payment_status TEXT NOT NULL,
            paid_session_id TEXT NOT NULL DEFAULT '',
            cleaner_response TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS payment_transactions (
            id TEXT PRIMARY KEY,
            session_id TEXT NOT NULL UNIQUE,
            booking_id TEXT NOT NULL,
            customer_id TEXT NOT NULL,
            amount INTEGER NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            payment_status TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS cleaner_applications (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL UNIQUE,
            status TEXT NOT NULL,
            personal_info TEXT NOT NULL,
            hourly_rate INTEGER NOT NULL,
            service_areas TEXT NOT NULL DEFAULT '[]',
            specialties TEXT NOT NULL DEFAULT '[]',
            documents TEXT NOT NULL DEFAULT '{}',
            background_check_id TEXT NOT NULL DEFAULT '',
            background_check_status TEXT NOT NULL DEFAULT '',
            background_check_verdict TEXT NOT NULL DEFAULT '',
            background_check_results TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS ratings (
            id TEXT PRIMARY KEY,
            booking_id TEXT NOT NULL UNIQUE,
            cleaner_id TEXT NOT NULL,
            customer_id TEXT NOT NULL,
            score INTEGER NOT NULL CHECK (score BETWEEN 1 AND 5),
            review TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer_id ON bookings(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_cleaner_id ON bookings(cleaner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_booking_id ON payment_transactions(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payment_transactions(payment_status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_status ON cleaner_applications(status)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_cleaner_id ON ratings(cleaner_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Path() string {
	return db.path
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

// exists distinguishes "guard did not match" from "no such row" after a zero-row update.
func (db *DB) exists(ctx context.Context, table, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	return true, nil
}
