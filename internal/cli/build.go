package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/drvbuild/internal/config"
	"github.com/roach88/drvbuild/internal/executor"
	"github.com/roach88/drvbuild/internal/pipeline"
	"github.com/roach88/drvbuild/internal/store"
	"github.com/roach88/drvbuild/internal/version"
)

// Build modes accepted as the first argument.
const (
	ModeChecked = "checked"
	ModeFree    = "free"
	ArgNoSDV    = "nosdv"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Root       string
	ConfigFile string
	Journal    string
	Toolset    string

	// Env overrides the process environment (for testing).
	Env config.Lookup

	// Executor overrides the subprocess executor (for testing).
	Executor executor.Executor

	// Now overrides the clock (for testing). Defaults to time.Now.
	Now func() time.Time

	// IDs overrides the run id generator. Defaults to UUIDv7Generator.
	IDs store.IDGenerator
}

// BuildResult summarises one pipeline run.
type BuildResult struct {
	RunID         string                `json:"run_id,omitempty"`
	Version       string                `json:"version"`
	Configuration string                `json:"configuration"`
	Toolset       string                `json:"toolset"`
	Steps         []pipeline.StepResult `json:"steps"`
	FailedStep    string                `json:"failed_step,omitempty"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	return newBuildCommand(&BuildOptions{RootOptions: rootOpts})
}

func newBuildCommand(opts *BuildOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <checked|free> [nosdv]",
		Short: "Run the full build pipeline",
		Long: `Run the build pipeline for the driver in the project root.

"checked" selects the debug configuration and "free" the release one. A
second argument of "nosdv" skips Static Driver Verification.

Required environment: SYMBOL_SERVER, KIT, PROCESSOR_ARCHITECTURE, and VS
unless --toolset is given.

Example:
  drvbuild build free
  drvbuild build checked nosdv --journal ./drvbuild.db`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", ".", "project root")
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "optional YAML project file")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite run journal to record this run in")
	cmd.Flags().StringVar(&opts.Toolset, "toolset", "", "toolset directory (vs2012|vs2013); detected from VS when empty")

	return cmd
}

// parseBuildArgs maps the positional arguments to (debug, sdv).
func parseBuildArgs(args []string) (debug, sdv bool, err error) {
	switch args[0] {
	case ModeChecked:
		debug = true
	case ModeFree:
	default:
		return false, false, fmt.Errorf("unknown build mode %q: must be %q or %q", args[0], ModeChecked, ModeFree)
	}

	sdv = true
	if len(args) > 1 {
		if args[1] != ArgNoSDV {
			return false, false, fmt.Errorf("unknown argument %q: only %q is accepted", args[1], ArgNoSDV)
		}
		sdv = false
	}
	return debug, sdv, nil
}

func runBuild(opts *BuildOptions, args []string, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	debug, sdv, err := parseBuildArgs(args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{
		Root:    opts.Root,
		File:    opts.ConfigFile,
		Env:     opts.Env,
		Toolset: opts.Toolset,
		Debug:   debug,
		SDV:     sdv,
	})
	if err != nil {
		return fail(formatter, CodeConfig, ExitCommandError, "failed to load configuration", err)
	}

	// Subprocess output must not corrupt a JSON summary on stdout.
	console := cmd.OutOrStdout()
	if opts.Format == "json" {
		console = cmd.ErrOrStderr()
	}
	exec := opts.Executor
	if exec == nil {
		exec = executor.New(console)
	}

	if cfg.Toolset == "" {
		toolset, err := config.DetectToolset(ctx, exec, cfg.VSDir)
		if err != nil {
			return fail(formatter, CodeToolset, ExitCommandError, "failed to detect toolset", err)
		}
		cfg = cfg.WithToolset(toolset)
	}
	slog.Debug("toolset", "toolset", cfg.Toolset, "release", cfg.Release())

	if cfg.Info.Build == "" {
		n, err := version.NextBuildNumber(cfg.CounterPath())
		if err != nil {
			return fail(formatter, CodeConfig, ExitCommandError, "failed to allocate build number", err)
		}
		cfg = cfg.WithBuildNumber(n)
	}

	fmt.Fprintf(console, "Building %s %s %s (%s)\n", cfg.Driver, cfg.Info, cfg.Configuration(), cfg.Toolset)

	steps, err := pipeline.Plan(cfg, pipeline.Deps{Exec: exec, Now: now, Out: console})
	if err != nil {
		return fail(formatter, CodeConfig, ExitCommandError, "failed to plan build", err)
	}

	result := BuildResult{
		Version:       cfg.Info.String(),
		Configuration: cfg.Configuration(),
		Toolset:       cfg.Toolset,
	}

	seqOpts := []pipeline.Option{pipeline.WithClock(now)}

	var journal *store.Store
	if opts.Journal != "" {
		journal, err = store.Open(opts.Journal)
		if err != nil {
			return fail(formatter, CodeJournal, ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := journal.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()

		ids := opts.IDs
		if ids == nil {
			ids = store.UUIDv7Generator{}
		}
		result.RunID = ids.Generate()
		err = journal.BeginRun(ctx, store.Run{
			ID:            result.RunID,
			BuildNumber:   cfg.Info.Build,
			Version:       result.Version,
			Configuration: result.Configuration,
			Toolset:       cfg.Toolset,
			StartedAt:     now(),
		})
		if err != nil {
			return fail(formatter, CodeJournal, ExitCommandError, "failed to record run", err)
		}
		seqOpts = append(seqOpts, pipeline.WithObserver(store.NewJournal(journal, result.RunID)))
	}

	seq, err := pipeline.NewSequencer(steps, seqOpts...)
	if err != nil {
		return fail(formatter, CodeConfig, ExitCommandError, "invalid build plan", err)
	}

	results, runErr := seq.Run(ctx)
	result.Steps = results
	if name, ok := pipeline.FailedStep(runErr); ok {
		result.FailedStep = name
	}

	if journal != nil {
		status, errText := store.RunSucceeded, ""
		if runErr != nil {
			status, errText = store.RunFailed, runErr.Error()
		}
		finishCtx := context.WithoutCancel(ctx)
		if err := journal.FinishRun(finishCtx, result.RunID, status, result.FailedStep, errText, now()); err != nil {
			slog.Error("failed to record run result", "run", result.RunID, "error", err)
		}
	}

	if runErr != nil {
		if opts.Format == "json" {
			_ = formatter.Error(CodeStep, runErr.Error(), result)
		} else {
			printBuildResult(cmd.ErrOrStderr(), result)
		}
		return WrapExitError(ExitFailure, "build failed", runErr)
	}

	return formatter.Success(result, func(w io.Writer) {
		printBuildResult(w, result)
	})
}

func printBuildResult(w io.Writer, result BuildResult) {
	fmt.Fprintf(w, "\n%s %s\n", result.Version, result.Configuration)
	for _, step := range result.Steps {
		switch step.Status {
		case pipeline.StatusSucceeded:
			fmt.Fprintf(w, "  ✓ %-24s %s\n", step.Name, step.Duration.Round(time.Millisecond))
		case pipeline.StatusFailed:
			fmt.Fprintf(w, "  ✗ %-24s %s\n", step.Name, step.Error)
		default:
			fmt.Fprintf(w, "  - %-24s skipped\n", step.Name)
		}
	}
	if result.RunID != "" {
		fmt.Fprintf(w, "Run %s\n", result.RunID)
	}
}

// fail reports err in JSON mode and returns it with exit code exitCode.
func fail(f *OutputFormatter, code string, exitCode int, message string, err error) error {
	if f.Format == "json" {
		var details any
		var missing *config.MissingEnvError
		if errors.As(err, &missing) {
			details = map[string]any{"missing": missing.Names}
		}
		_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	}
	return WrapExitError(exitCode, message, err)
}

// envOrDefault reads key from env, falling back to def.
func envOrDefault(env config.Lookup, key, def string) string {
	if env == nil {
		env = os.LookupEnv
	}
	if v, ok := env(key); ok && v != "" {
		return v
	}
	return def
}
