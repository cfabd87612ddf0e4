package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"masterhand/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound               = errors.New("record not found")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrDuplicateOffer         = errors.New("craftsman already has an offer on this request")
	ErrDuplicateBooking       = errors.New("a booking already exists for this offer or request")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repo struct {
	q querier
}

type DB struct {
	*sql.DB
	repo
	logger *zerolog.Logger
}

var _ domain.Store = (*DB)(nil)

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serialises writers anyway; a single connection turns every InTx
	// into a serializable unit of work and keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	db := &DB{DB: sqlDB, repo: repo{q: sqlDB}, logger: logger}
	if err := db.Migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

// Migrate creates the schema if it does not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS crafts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE
        )`,
		`CREATE TABLE IF NOT EXISTS customers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            first_name TEXT NOT NULL,
            last_name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            city TEXT NOT NULL DEFAULT '',
            telegram_id INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS craftsmen (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            first_name TEXT NOT NULL,
            last_name TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            craft_id INTEGER NOT NULL,
            telegram_id INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS service_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            customer_id INTEGER NOT NULL,
            craft_id INTEGER NOT NULL,
            title TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            preferred_date DATETIME,
            status TEXT NOT NULL DEFAULT 'Open',
            offer_count INTEGER NOT NULL DEFAULT 0,
            max_offers INTEGER NOT NULL DEFAULT 10,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            expires_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS offers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            service_request_id INTEGER NOT NULL,
            craftsman_id INTEGER NOT NULL,
            price INTEGER NOT NULL,
            estimated_duration INTEGER NOT NULL DEFAULT 0,
            notes TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'Pending',
            rejection_reason TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            accepted_at DATETIME,
            rejected_at DATETIME,
            withdrawn_at DATETIME,
            UNIQUE (service_request_id, craftsman_id)
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            customer_id INTEGER NOT NULL,
            craftsman_id INTEGER NOT NULL,
            craft_id INTEGER NOT NULL,
            service_request_id INTEGER UNIQUE,
            offer_id INTEGER NOT NULL UNIQUE,
            booking_date DATETIME NOT NULL,
            total_amount INTEGER NOT NULL,
            refundable_amount INTEGER NOT NULL,
            payment_deadline DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'InProgress',
            cancellation_reason TEXT NOT NULL DEFAULT '',
            cancelled_at DATETIME,
            confirmed_at DATETIME,
            completed_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS payments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL,
            amount INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'Pending',
            provider TEXT NOT NULL,
            transaction_id TEXT NOT NULL DEFAULT '',
            gateway_transaction_id TEXT NOT NULL DEFAULT '',
            refund_transaction_id TEXT NOT NULL DEFAULT '',
            failure_reason TEXT NOT NULL DEFAULT '',
            paid_at DATETIME,
            refunded_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_service_requests_customer_id ON service_requests(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_service_request_id ON offers(service_request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_craftsman_id ON offers(craftsman_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer_id ON bookings(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_booking_id ON payments(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_transaction_id ON payments(transaction_id)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return db.addColumn(ctx, "payments", "gateway_transaction_id", "TEXT NOT NULL DEFAULT ''")
}

// addColumn upgrades a table created by an older schema.
func (db *DB) addColumn(ctx context.Context, table, column, definition string) error {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to inspect table %s: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	rows.Close()

	if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	db.logger.Info().Str("table", table).Str("column", column).Msg("schema upgraded")
	return nil
}

// InTx runs fn inside one transaction. Any error returned by fn, or a failed
// commit, rolls back every write made through the repository handed to fn.
func (db *DB) InTx(ctx context.Context, fn func(repo domain.Repository) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&repo{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// expectOneRow turns a conditional UPDATE that touched nothing into ErrConcurrentModification.
func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
