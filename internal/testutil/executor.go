package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/roach88/drvbuild/internal/executor"
)

// FakeExecutor records every command instead of launching it.
//
// OnRun and OnOutput decide the outcome of each call; when nil the call
// succeeds with no output. Hooks may create files on disk to stand in for
// the artifacts a real tool would produce.
//
// Thread-safety: FakeExecutor is safe for concurrent use via internal mutex.
type FakeExecutor struct {
	mu    sync.Mutex
	calls []executor.Command

	OnRun    func(cmd executor.Command) error
	OnOutput func(cmd executor.Command) ([]byte, error)
}

// NewFakeExecutor creates a FakeExecutor where every call succeeds.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{}
}

// Run implements executor.Executor.
func (f *FakeExecutor) Run(_ context.Context, cmd executor.Command) error {
	f.record(cmd)
	if f.OnRun == nil {
		return nil
	}
	return f.OnRun(cmd)
}

// Output implements executor.Executor.
func (f *FakeExecutor) Output(_ context.Context, cmd executor.Command) ([]byte, error) {
	f.record(cmd)
	if f.OnOutput == nil {
		return nil, nil
	}
	return f.OnOutput(cmd)
}

func (f *FakeExecutor) record(cmd executor.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
}

// Calls returns a copy of the recorded commands in call order.
func (f *FakeExecutor) Calls() []executor.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]executor.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// EnvValue returns the value of key in cmd.Env, or "" when absent.
func EnvValue(cmd executor.Command, key string) string {
	prefix := key + "="
	for _, kv := range cmd.Env {
		if strings.HasPrefix(kv, prefix) {
			return strings.TrimPrefix(kv, prefix)
		}
	}
	return ""
}

// ExitStatus returns the error a real executor reports for a non-zero exit.
func ExitStatus(cmd executor.Command, status int) error {
	return &executor.ExitError{Command: cmd, Status: status}
}
