// Package pipeline sequences the build as an explicit list of named steps.
//
// Each Step declares the steps it depends on. A dependency must appear
// earlier in the list, so list order is always a valid execution order and
// the sequencer never reorders. Execution is strictly sequential: the first
// failing step aborts the run and no later step starts. Artifacts written
// by steps that already succeeded stay on disk.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Step is one named stage of the pipeline.
type Step struct {
	Name      string
	DependsOn []string
	Run       func(ctx context.Context) error
}

// Status of a step after a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StepResult records the outcome of one step.
type StepResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// StepError wraps the error of the step that aborted a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// PlanError reports an invalid step list.
type PlanError struct {
	Step    string
	Message string
}

func (e *PlanError) Error() string {
	if e.Step == "" {
		return "invalid plan: " + e.Message
	}
	return fmt.Sprintf("invalid plan: step %q: %s", e.Step, e.Message)
}

// Observer is notified as steps start and finish.
type Observer interface {
	StepStarted(ctx context.Context, seq int, name string)
	StepFinished(ctx context.Context, seq int, result StepResult)
}

// Sequencer runs a validated step list.
type Sequencer struct {
	steps    []Step
	observer Observer
	now      func() time.Time
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(s *Sequencer) { s.observer = o }
}

// WithClock replaces the clock used to time steps.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// NewSequencer validates steps and returns a Sequencer for them.
func NewSequencer(steps []Step, opts ...Option) (*Sequencer, error) {
	if err := Validate(steps); err != nil {
		return nil, err
	}
	s := &Sequencer{
		steps: append([]Step(nil), steps...),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Validate checks that names are unique and non-empty, every step has a Run
// function, and every dependency names an earlier step.
func Validate(steps []Step) error {
	if len(steps) == 0 {
		return &PlanError{Message: "no steps"}
	}
	seen := make(map[string]int, len(steps))
	for i, step := range steps {
		if step.Name == "" {
			return &PlanError{Message: fmt.Sprintf("step %d has no name", i)}
		}
		if _, dup := seen[step.Name]; dup {
			return &PlanError{Step: step.Name, Message: "duplicate name"}
		}
		if step.Run == nil {
			return &PlanError{Step: step.Name, Message: "no run function"}
		}
		for _, dep := range step.DependsOn {
			if dep == step.Name {
				return &PlanError{Step: step.Name, Message: "depends on itself"}
			}
			if _, ok := seen[dep]; !ok {
				if containsStep(steps[i+1:], dep) {
					return &PlanError{Step: step.Name, Message: fmt.Sprintf("dependency %q runs later", dep)}
				}
				return &PlanError{Step: step.Name, Message: fmt.Sprintf("unknown dependency %q", dep)}
			}
		}
		seen[step.Name] = i
	}
	return nil
}

func containsStep(steps []Step, name string) bool {
	for _, s := range steps {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Names returns the step names in execution order.
func (s *Sequencer) Names() []string {
	names := make([]string, len(s.steps))
	for i, step := range s.steps {
		names[i] = step.Name
	}
	return names
}

// Run executes the steps in order. On the first failure the remaining steps
// are reported as skipped and the failure is returned as *StepError.
func (s *Sequencer) Run(ctx context.Context) ([]StepResult, error) {
	results := make([]StepResult, 0, len(s.steps))

	for i, step := range s.steps {
		seq := i + 1
		if s.observer != nil {
			s.observer.StepStarted(ctx, seq, step.Name)
		}
		slog.Info("step starting", "step", step.Name, "seq", seq)

		start := s.now()
		err := step.Run(ctx)
		if err == nil {
			err = ctx.Err()
		}
		result := StepResult{
			Name:     step.Name,
			Status:   StatusSucceeded,
			Duration: s.now().Sub(start),
		}
		if err != nil {
			result.Status = StatusFailed
			result.Error = err.Error()
		}
		results = append(results, result)
		if s.observer != nil {
			s.observer.StepFinished(ctx, seq, result)
		}

		if err != nil {
			slog.Error("step failed", "step", step.Name, "error", err)
			for _, rest := range s.steps[i+1:] {
				results = append(results, StepResult{Name: rest.Name, Status: StatusSkipped})
			}
			return results, &StepError{Step: step.Name, Err: err}
		}
		slog.Info("step finished", "step", step.Name, "duration", result.Duration)
	}
	return results, nil
}

// FailedStep returns the name of the step that aborted a run, if any.
func FailedStep(err error) (string, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}
	return "", false
}
