// Package sendlog persists per-recipient batch outcomes to Postgres so
// operators can audit what was sent and drive manual resends for
// failures. The executor itself stays stateless; recording happens at
// the orchestration layer, and a nil *Log disables it entirely.
package sendlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certforge/certmailer/internal/batch"
)

// Log writes send history rows.
type Log struct {
	db *sql.DB
}

// New creates a send log on top of an open database handle.
func New(db *sql.DB) *Log {
	return &Log{db: db}
}

// RecordBatch inserts one row per outcome under a shared batch ID.
// Calling it on a nil Log is a no-op.
func (l *Log) RecordBatch(ctx context.Context, batchID uuid.UUID, subject string, res *batch.Result) error {
	if l == nil || l.db == nil {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning send log tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, o := range res.Results {
		var errMsg sql.NullString
		if o.Error != "" {
			errMsg = sql.NullString{String: o.Error, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO certmailer_send_log (id, batch_id, email, name, subject, status, error_message, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New(), batchID, o.Email, o.Name, subject, o.Status, errMsg, now)
		if err != nil {
			return fmt.Errorf("inserting send log row for %s: %w", o.Email, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing send log: %w", err)
	}
	return nil
}

// BatchSummary is one row of send history rolled up by batch.
type BatchSummary struct {
	BatchID    uuid.UUID `json:"batchId"`
	Subject    string    `json:"subject"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	RecordedAt time.Time `json:"recordedAt"`
}

// RecentBatches returns the newest batches, most recent first.
func (l *Log) RecentBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT batch_id, MIN(subject),
		       COUNT(*) FILTER (WHERE status = 'success'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       MIN(recorded_at)
		FROM certmailer_send_log
		GROUP BY batch_id
		ORDER BY MIN(recorded_at) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying send log: %w", err)
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		var s BatchSummary
		if err := rows.Scan(&s.BatchID, &s.Subject, &s.Sent, &s.Failed, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning send log row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
