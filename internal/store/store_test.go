package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/drvbuild/internal/pipeline"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string, started time.Time) Run {
	return Run{
		ID:            id,
		BuildNumber:   "42",
		Version:       "8.2.0.42",
		Configuration: "Windows 7 Release",
		Toolset:       "vs2013",
		StartedAt:     started,
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"runs", "steps"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s missing", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"user_version": "1",
	} {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestOpen_MigratesJournalWithoutFailedStep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE runs (
		id TEXT PRIMARY KEY,
		build_number TEXT NOT NULL,
		version TEXT NOT NULL,
		configuration TEXT NOT NULL,
		toolset TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	version, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	require.NoError(t, s.BeginRun(context.Background(), testRun("old", time.Now())))
	require.NoError(t, s.FinishRun(context.Background(), "old", RunFailed, "build-x86", "boom", time.Now()))
	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "build-x86", runs[0].FailedStep)
}

func TestRunLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.BeginRun(ctx, testRun("run-1", started)))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)
	assert.True(t, started.Equal(runs[0].StartedAt))

	finished := started.Add(5 * time.Minute)
	require.NoError(t, s.FinishRun(ctx, "run-1", RunFailed, "build", "exit status 1", finished))

	runs, err = s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunFailed, runs[0].Status)
	assert.Equal(t, "build", runs[0].FailedStep)
	assert.Equal(t, "exit status 1", runs[0].Error)
	require.NotNil(t, runs[0].FinishedAt)
	assert.True(t, finished.Equal(*runs[0].FinishedAt))
}

func TestFinishRun_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	err := s.FinishRun(context.Background(), "missing", RunSucceeded, "", "", time.Now())
	assert.ErrorContains(t, err, "not found")
}

func TestListRuns_NewestFirstWithLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.BeginRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}

func TestListRuns_Empty(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestWriteStep_RequiresRun(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteStep(context.Background(), StepRecord{RunID: "nope", Seq: 1, Name: "build", Status: RunRunning})
	assert.Error(t, err)
}

func TestJournal_RecordsStepsFromSequencer(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginRun(ctx, testRun("run-1", time.Now())))

	boom := errors.New("boom")
	steps := []pipeline.Step{
		{Name: "revision", Run: func(context.Context) error { return nil }},
		{Name: "build", DependsOn: []string{"revision"}, Run: func(context.Context) error { return boom }},
		{Name: "archive-source", DependsOn: []string{"build"}, Run: func(context.Context) error { return nil }},
	}
	seq, err := pipeline.NewSequencer(steps, pipeline.WithObserver(NewJournal(s, "run-1")))
	require.NoError(t, err)

	_, err = seq.Run(ctx)
	require.ErrorIs(t, err, boom)

	recorded, err := s.ReadSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, recorded, 2, "skipped steps never start and are not journaled")

	assert.Equal(t, "revision", recorded[0].Name)
	assert.Equal(t, string(pipeline.StatusSucceeded), recorded[0].Status)
	assert.Equal(t, 1, recorded[0].Seq)

	assert.Equal(t, "build", recorded[1].Name)
	assert.Equal(t, string(pipeline.StatusFailed), recorded[1].Status)
	assert.Equal(t, "boom", recorded[1].Error)
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("one", "two")

	assert.Equal(t, "one", g.Generate())
	assert.Equal(t, "two", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_Sortable(t *testing.T) {
	var g UUIDv7Generator

	a := g.Generate()
	time.Sleep(2 * time.Millisecond)
	b := g.Generate()

	assert.Len(t, a, 36)
	assert.Less(t, a, b)
}
