package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would break a uniqueness or state rule.
	ErrConflict = errors.New("conflict")
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS templates (
    id TEXT PRIMARY KEY,
    topic TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    parent_id TEXT,
    source TEXT NOT NULL DEFAULT 'manual',
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS template_ab_tests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    test_name TEXT NOT NULL,
    template_a_id TEXT NOT NULL,
    template_b_id TEXT NOT NULL,
    start_date INTEGER NOT NULL,
    end_date INTEGER,
    status TEXT NOT NULL DEFAULT 'active',
    winner_id TEXT,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_ab_tests_status ON template_ab_tests(status);
CREATE INDEX IF NOT EXISTS idx_ab_tests_a ON template_ab_tests(template_a_id, status);
CREATE INDEX IF NOT EXISTS idx_ab_tests_b ON template_ab_tests(template_b_id, status);

CREATE TABLE IF NOT EXISTS template_ab_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    test_id INTEGER NOT NULL,
    variant_id TEXT NOT NULL,
    impressions INTEGER NOT NULL DEFAULT 0,
    conversions INTEGER NOT NULL DEFAULT 0,
    revenue REAL NOT NULL DEFAULT 0,
    conversion_rate REAL NOT NULL DEFAULT 0,
    date INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (test_id) REFERENCES template_ab_tests(id)
);

CREATE INDEX IF NOT EXISTS idx_ab_results_test ON template_ab_results(test_id, variant_id);

CREATE TABLE IF NOT EXISTS trend_analysis (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    topic TEXT NOT NULL,
    source TEXT NOT NULL,
    keyword TEXT NOT NULL,
    trend_score REAL NOT NULL DEFAULT 0,
    volume INTEGER NOT NULL DEFAULT 0,
    timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_trend_timestamp ON trend_analysis(timestamp);

CREATE TABLE IF NOT EXISTS template_optimization_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    template_id TEXT NOT NULL,
    optimization_type TEXT NOT NULL,
    changes TEXT,
    before_metrics TEXT,
    after_metrics TEXT,
    date INTEGER NOT NULL DEFAULT (unixepoch()),
    metadata TEXT
);

CREATE TABLE IF NOT EXISTS products (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    price REAL NOT NULL DEFAULT 0,
    type TEXT NOT NULL DEFAULT 'digital',
    description TEXT,
    template_id TEXT,
    ab_test_variant TEXT,
    sales_count INTEGER NOT NULL DEFAULT 0,
    total_revenue REAL NOT NULL DEFAULT 0,
    created_date INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_products_template ON products(template_id);

CREATE TABLE IF NOT EXISTS revenue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL DEFAULT 'USD',
    description TEXT,
    product_id INTEGER,
    timestamp INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS performance_metrics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    metric_type TEXT NOT NULL,
    metric_name TEXT NOT NULL,
    value REAL NOT NULL,
    source TEXT,
    timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
    metadata TEXT
);

CREATE TABLE IF NOT EXISTS content_performance (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content_file TEXT NOT NULL,
    platform TEXT NOT NULL,
    clicks INTEGER NOT NULL DEFAULT 0,
    conversions INTEGER NOT NULL DEFAULT 0,
    revenue REAL NOT NULL DEFAULT 0,
    date INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS campaign_performance (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    campaign_id TEXT NOT NULL,
    impressions INTEGER NOT NULL DEFAULT 0,
    clicks INTEGER NOT NULL DEFAULT 0,
    conversions INTEGER NOT NULL DEFAULT 0,
    revenue REAL NOT NULL DEFAULT 0,
    commissions REAL NOT NULL DEFAULT 0,
    date INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS leads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT,
    source TEXT,
    value_score INTEGER,
    contacted INTEGER NOT NULL DEFAULT 0,
    converted INTEGER NOT NULL DEFAULT 0,
    revenue REAL NOT NULL DEFAULT 0
);
`

// Open opens (or creates) the database in WAL mode. Every connection in the
// pool starts write transactions with BEGIN IMMEDIATE, so read-aggregate-write
// sequences never interleave across goroutines or processes.
func Open(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return New(db), nil
}

// New wraps an already-open database without touching its schema.
func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// WithClock replaces the store's time source. Tests use it to place rows in
// and out of time windows.
func (s *SQLiteStore) WithClock(now func() time.Time) *SQLiteStore {
	s.now = now
	return s
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Ping checks the connection and returns the database size in bytes.
func (s *SQLiteStore) Ping(ctx context.Context) (int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
	).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("failed to ping database: %w", err)
	}
	return size, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullableString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
