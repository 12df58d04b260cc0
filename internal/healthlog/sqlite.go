package healthlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SQLStore implements Store on database/sql. NewSQLiteStore opens it on an
// SQLite file; NewSQLStore wraps an already-open handle.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLiteStore creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLStore{db: db, driver: "sqlite"}, nil
}

// NewSQLStore uses an existing handle whose schema is already in place.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS health_logs (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		log_date TEXT NOT NULL,
		log TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		symptom_severity INTEGER NOT NULL,
		PRIMARY KEY (collection, log_date)
	);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *SQLStore) All(ctx context.Context, collection string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, log_date, log, summary, symptom_severity FROM health_logs WHERE collection = ? ORDER BY log_date",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query health logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Date, &e.Log, &e.Summary, &e.Severity); err != nil {
			return nil, fmt.Errorf("failed to scan health log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read health logs: %w", err)
	}
	return entries, nil
}

// ReplaceAll swaps the collection contents in one transaction.
func (s *SQLStore) ReplaceAll(ctx context.Context, collection string, entries []Entry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM health_logs WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("failed to clear health logs: %w", err)
	}

	for _, e := range entries {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO health_logs (collection, id, log_date, log, summary, symptom_severity) VALUES (?, ?, ?, ?, ?, ?)",
			collection, e.ID, e.Date, e.Log, e.Summary, e.Severity,
		); err != nil {
			return fmt.Errorf("failed to insert health log %s: %w", e.Date, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit health logs: %w", err)
	}
	return nil
}

func (s *SQLStore) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	stats := map[string]string{"driver": s.driver}
	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	dbStats := s.db.Stats()
	stats["status"] = "up"
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	return stats
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
