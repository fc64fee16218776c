package store

import (
	"context"
	"fmt"
	"time"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is one journaled pipeline run.
type Run struct {
	ID            string     `json:"id"`
	BuildNumber   string     `json:"build_number"`
	Version       string     `json:"version"`
	Configuration string     `json:"configuration"`
	Toolset       string     `json:"toolset"`
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	FailedStep    string     `json:"failed_step,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// StepRecord is one journaled step.
type StepRecord struct {
	RunID    string        `json:"run_id"`
	Seq      int           `json:"seq"`
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// BeginRun inserts run with status running.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, build_number, version, configuration, toolset, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.BuildNumber,
		run.Version,
		run.Configuration,
		run.Toolset,
		RunRunning,
		run.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run. failedStep and errText are
// empty for successful runs.
func (s *Store) FinishRun(ctx context.Context, id, status, failedStep, errText string, finished time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, failed_step = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, failedStep, errText, finished.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: run %s not found", id)
	}
	return nil
}

// WriteStep inserts or replaces the record of one step.
func (s *Store) WriteStep(ctx context.Context, step StepRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (run_id, seq, name, status, error, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			duration_ns = excluded.duration_ns
	`,
		step.RunID,
		step.Seq,
		step.Name,
		step.Status,
		step.Error,
		int64(step.Duration),
	)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	return nil
}
