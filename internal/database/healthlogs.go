package database

import (
	"context"
	"fmt"

	"HealthAI/internal/healthlog"

	"github.com/jackc/pgx/v5"
)

const healthLogsSchema = `
CREATE TABLE IF NOT EXISTS health_logs (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	log_date TEXT NOT NULL CHECK (log_date ~ '^\d{4}-\d{2}-\d{2}$'),
	log TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	symptom_severity SMALLINT NOT NULL CHECK (symptom_severity BETWEEN 1 AND 10),
	PRIMARY KEY (collection, log_date)
);`

var healthLogColumns = []string{"collection", "id", "log_date", "log", "summary", "symptom_severity"}

// HealthLogStore implements healthlog.Store on PostgreSQL.
type HealthLogStore struct {
	db Service
}

// NewHealthLogStore creates the table if needed.
func NewHealthLogStore(ctx context.Context, db Service) (*HealthLogStore, error) {
	if _, err := db.Pool().Exec(ctx, healthLogsSchema); err != nil {
		return nil, fmt.Errorf("failed to create health_logs table: %w", err)
	}
	return &HealthLogStore{db: db}, nil
}

func (s *HealthLogStore) All(ctx context.Context, collection string) ([]healthlog.Entry, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT id, log_date, log, summary, symptom_severity::int
		 FROM health_logs WHERE collection = $1 ORDER BY log_date`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query health logs: %w", err)
	}

	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[healthlog.Entry])
	if err != nil {
		return nil, fmt.Errorf("failed to read health logs: %w", err)
	}
	return entries, nil
}

// ReplaceAll swaps the collection contents in one transaction, bulk loading
// the new rows with COPY.
func (s *HealthLogStore) ReplaceAll(ctx context.Context, collection string, entries []healthlog.Entry) error {
	return pgx.BeginFunc(ctx, s.db.Pool(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM health_logs WHERE collection = $1", collection); err != nil {
			return fmt.Errorf("failed to clear health logs: %w", err)
		}

		rows := make([][]any, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []any{collection, e.ID, e.Date, e.Log, e.Summary, e.Severity})
		}

		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"health_logs"}, healthLogColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to write health logs: %w", err)
		}
		return nil
	})
}

func (s *HealthLogStore) Health(ctx context.Context) map[string]string {
	return s.db.Health(ctx)
}

func (s *HealthLogStore) Close() error {
	s.db.Close()
	return nil
}
