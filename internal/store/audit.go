package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CandleNFT/forge/internal/models"
)

// AuditEvent is one row of the build transition trail.
type AuditEvent struct {
	JobID    string           `json:"job_id"`
	Event    string           `json:"event"`
	Status   models.JobStatus `json:"status"`
	Step     int              `json:"step"`
	Detail   string           `json:"detail"`
	Recorded time.Time        `json:"recorded_at"`
}

// AuditLog appends build transitions to Postgres. It never stores job state
// that is read back, and never receives credentials.
type AuditLog struct {
	pool *pgxpool.Pool
}

// NewAuditLog creates a pooled connection to Postgres.
func NewAuditLog(ctx context.Context, dsn string) (*AuditLog, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &AuditLog{pool: pool}, nil
}

func (a *AuditLog) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// Append adds an audit row for a job transition.
func (a *AuditLog) Append(ctx context.Context, job models.BuildJob, event, detail string) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO build_events (job_id, event, status, step, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, job.ID, event, string(job.Status), job.Step, detail)
	if err != nil {
		return fmt.Errorf("insert build event: %w", err)
	}
	return nil
}

// Events returns the trail for one job, oldest first.
func (a *AuditLog) Events(ctx context.Context, jobID string) ([]AuditEvent, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT job_id, event, status, step, detail, recorded_at
		FROM build_events WHERE job_id = $1 ORDER BY recorded_at, id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query build events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuditEvent, error) {
		var ev AuditEvent
		var status string
		if err := row.Scan(&ev.JobID, &ev.Event, &status, &ev.Step, &ev.Detail, &ev.Recorded); err != nil {
			return AuditEvent{}, err
		}
		ev.Status = models.JobStatus(status)
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan build events: %w", err)
	}
	return events, nil
}
