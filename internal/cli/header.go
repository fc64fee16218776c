package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/drvbuild/internal/config"
	"github.com/roach88/drvbuild/internal/version"
)

// HeaderOptions holds flags for the header command.
type HeaderOptions struct {
	*RootOptions
	Root       string
	ConfigFile string
	Out        string

	// Env overrides the process environment (for testing).
	Env config.Lookup

	// Now overrides the clock (for testing). Defaults to time.Now.
	Now func() time.Time
}

// HeaderResult reports where the header went and what it carries.
type HeaderResult struct {
	Path string       `json:"path,omitempty"`
	Info version.Info `json:"info"`
}

// NewHeaderCommand creates the header command.
func NewHeaderCommand(rootOpts *RootOptions) *cobra.Command {
	return newHeaderCommand(&HeaderOptions{RootOptions: rootOpts})
}

func newHeaderCommand(opts *HeaderOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "header",
		Short: "Write the version header only",
		Long: `Write include/version.h without running the rest of the pipeline.

The build number comes from BUILD_NUMBER, or else the current value of the
.build_number counter, which is not advanced. --out - writes to stdout.

Example:
  drvbuild header
  BUILD_NUMBER=41 drvbuild header --out -`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeader(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", ".", "project root")
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "optional YAML project file")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output path, - for stdout (default <root>/include/version.h)")

	return cmd
}

func runHeader(opts *HeaderOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	info, err := config.LoadInfo(config.Options{
		Root: opts.Root,
		File: opts.ConfigFile,
		Env:  opts.Env,
	})
	if err != nil {
		return fail(formatter, CodeConfig, ExitCommandError, "failed to load configuration", err)
	}

	if info.Build == "" {
		n, err := version.CurrentBuildNumber(filepath.Join(opts.Root, version.CounterFile))
		if err != nil {
			return fail(formatter, CodeConfig, ExitCommandError, "failed to read build number", err)
		}
		info.Build = strconv.Itoa(n)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	result := HeaderResult{Info: info}
	switch opts.Out {
	case "-":
		return version.WriteHeader(cmd.OutOrStdout(), info, now())
	case "":
		path, err := version.WriteHeaderFile(opts.Root, info, now())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to write header", err)
		}
		result.Path = path
	default:
		if err := writeHeaderTo(opts.Out, info, now()); err != nil {
			return WrapExitError(ExitCommandError, "failed to write header", err)
		}
		result.Path = opts.Out
	}

	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Wrote %s (%s)\n", result.Path, result.Info)
	})
}

func writeHeaderTo(path string, info version.Info, now time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := version.WriteHeader(f, info, now); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
