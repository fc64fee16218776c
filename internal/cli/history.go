package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/drvbuild/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal string
	Limit   int
	Steps   bool
}

// HistoryEntry is one run with, optionally, its steps.
type HistoryEntry struct {
	store.Run
	Steps []store.StepRecord `json:"steps,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled build runs",
		Long: `List the runs recorded in a run journal, newest first.

Example:
  drvbuild history --journal ./drvbuild.db
  drvbuild history --journal ./drvbuild.db --limit 5 --steps --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite run journal (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&opts.Steps, "steps", false, "include per-step outcomes")
	_ = cmd.MarkFlagRequired("journal")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	// store.Open would create a missing journal.
	if _, err := os.Stat(opts.Journal); err != nil {
		return fail(formatter, CodeJournal, ExitCommandError, "journal not found", err)
	}

	st, err := store.Open(opts.Journal)
	if err != nil {
		return fail(formatter, CodeJournal, ExitCommandError, "failed to open journal", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing journal", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return fail(formatter, CodeJournal, ExitCommandError, "failed to list runs", err)
	}

	entries := make([]HistoryEntry, 0, len(runs))
	for _, run := range runs {
		entry := HistoryEntry{Run: run}
		if opts.Steps {
			entry.Steps, err = st.ReadSteps(ctx, run.ID)
			if err != nil {
				return fail(formatter, CodeJournal, ExitCommandError, "failed to read steps", err)
			}
		}
		entries = append(entries, entry)
	}

	return formatter.Success(entries, func(w io.Writer) {
		printHistory(w, entries)
	})
}

func printHistory(w io.Writer, entries []HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %s  %-10s %s  %s (%s)",
			e.StartedAt.Format("2006-01-02 15:04:05"), e.ID, e.Status, e.Version, e.Configuration, e.Toolset)
		if e.FailedStep != "" {
			line += "  failed at " + e.FailedStep
		}
		fmt.Fprintln(w, line)
		for _, s := range e.Steps {
			fmt.Fprintf(w, "    %2d %-24s %-10s %s\n", s.Seq, s.Name, s.Status, s.Duration)
		}
	}
}
