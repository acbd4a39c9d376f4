package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/snarg/pullquote/internal/job"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    id           TEXT PRIMARY KEY,
    mode         TEXT NOT NULL,
    url          TEXT NOT NULL,
    question     TEXT,
    state        TEXT NOT NULL,
    error        TEXT,
    result       JSONB,
    created_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at DESC);
`

func (db *DB) ensureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, jobsSchema); err != nil {
		return fmt.Errorf("ensure jobs schema: %w", err)
	}
	return nil
}

// RecordJob upserts a finished job into history. Implements job.Recorder.
func (db *DB) RecordJob(ctx context.Context, j job.Job) error {
	var result []byte
	if j.Result != nil {
		var err error
		result, err = json.Marshal(j.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO jobs (id, mode, url, question, state, error, result, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
		    state = EXCLUDED.state,
		    error = EXCLUDED.error,
		    result = EXCLUDED.result,
		    finished_at = EXCLUDED.finished_at`,
		j.ID, string(j.Mode), j.URL, j.Question, string(j.State), j.Error,
		result, j.CreatedAt, nullTime(j.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", j.ID, err)
	}
	return nil
}

// JobRow is one job history record.
type JobRow struct {
	ID         string          `json:"id"`
	Mode       string          `json:"mode"`
	URL        string          `json:"url"`
	Question   string          `json:"question,omitempty"`
	State      string          `json:"state"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// ListJobs returns the most recent job history records.
func (db *DB) ListJobs(ctx context.Context, limit int) ([]JobRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id, mode, url, COALESCE(question, ''), state, COALESCE(error, ''),
		       result, created_at, finished_at
		FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		var r JobRow
		if err := rows.Scan(&r.ID, &r.Mode, &r.URL, &r.Question, &r.State,
			&r.Error, &r.Result, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
