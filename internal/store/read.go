package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ListRuns returns the most recent runs, newest first. limit <= 0 means all.
//
// Returns an empty slice (not nil) when the journal is empty.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, build_number, version, configuration, toolset, status, error, failed_step, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run      Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(
			&run.ID,
			&run.BuildNumber,
			&run.Version,
			&run.Configuration,
			&run.Toolset,
			&run.Status,
			&run.Error,
			&run.FailedStep,
			&started,
			&finished,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = time.Unix(0, started).UTC()
		if finished.Valid {
			t := time.Unix(0, finished.Int64).UTC()
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadSteps returns the steps of a run in execution order.
func (s *Store) ReadSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, name, status, error, duration_ns
		FROM steps
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []StepRecord{}
	for rows.Next() {
		var (
			step StepRecord
			ns   int64
		)
		if err := rows.Scan(&step.RunID, &step.Seq, &step.Name, &step.Status, &step.Error, &ns); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.Duration = time.Duration(ns)
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}
