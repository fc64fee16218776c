package store

import (
	"context"
	"log/slog"

	"github.com/roach88/drvbuild/internal/pipeline"
)

// Journal records the steps of one run as the sequencer reports them.
// Write failures are logged and never abort the build.
type Journal struct {
	store *Store
	runID string
}

// NewJournal returns a pipeline.Observer writing to s under runID.
func NewJournal(s *Store, runID string) *Journal {
	return &Journal{store: s, runID: runID}
}

var _ pipeline.Observer = (*Journal)(nil)

// StepStarted implements pipeline.Observer.
func (j *Journal) StepStarted(ctx context.Context, seq int, name string) {
	err := j.store.WriteStep(ctx, StepRecord{
		RunID:  j.runID,
		Seq:    seq,
		Name:   name,
		Status: RunRunning,
	})
	if err != nil {
		slog.Error("journal step start", "run", j.runID, "step", name, "error", err)
	}
}

// StepFinished implements pipeline.Observer.
func (j *Journal) StepFinished(ctx context.Context, seq int, result pipeline.StepResult) {
	err := j.store.WriteStep(ctx, StepRecord{
		RunID:    j.runID,
		Seq:      seq,
		Name:     result.Name,
		Status:   string(result.Status),
		Error:    result.Error,
		Duration: result.Duration,
	})
	if err != nil {
		slog.Error("journal step finish", "run", j.runID, "step", result.Name, "error", err)
	}
}
