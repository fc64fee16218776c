package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/drvbuild/internal/config"
	"github.com/roach88/drvbuild/internal/symstore"
)

// ExpiredOptions holds flags for the expired command.
type ExpiredOptions struct {
	*RootOptions
	Tag          string
	Days         int
	SymbolServer string

	// Env overrides the process environment (for testing).
	Env config.Lookup

	// Now overrides the clock (for testing). Defaults to time.Now.
	Now func() time.Time
}

// ExpiredResult lists the transactions a retention pass would delete.
type ExpiredResult struct {
	Server  string   `json:"server"`
	Tag     string   `json:"tag"`
	Days    int      `json:"days"`
	IDs     []string `json:"ids"`
	Skipped int      `json:"skipped_lines"`
}

// NewExpiredCommand creates the expired command.
func NewExpiredCommand(rootOpts *RootOptions) *cobra.Command {
	return newExpiredCommand(&ExpiredOptions{RootOptions: rootOpts})
}

func newExpiredCommand(opts *ExpiredOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expired",
		Short: "List symbol transactions past retention",
		Long: `Read the symbol server's history log and list the add transactions
for a tag that are older than the retention period and not yet deleted.
Nothing is deleted.

Example:
  drvbuild expired --symbol-server \\syms\store
  drvbuild expired --tag xenvif --days 14 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpired(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Tag, "tag", config.DefaultDriver, "product tag the transactions were added under")
	cmd.Flags().IntVar(&opts.Days, "days", config.DefaultRetentionDays, "retention period in days")
	cmd.Flags().StringVar(&opts.SymbolServer, "symbol-server", "", "symbol server path (default $SYMBOL_SERVER)")

	return cmd
}

func runExpired(opts *ExpiredOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	server := opts.SymbolServer
	if server == "" {
		server = envOrDefault(opts.Env, config.EnvSymbolServer, "")
	}
	if server == "" {
		err := &config.MissingEnvError{Names: []string{config.EnvSymbolServer}}
		return fail(formatter, CodeConfig, ExitCommandError, "no symbol server", err)
	}
	if opts.Days < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--days must not be negative, got %d", opts.Days))
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	maxAge := time.Duration(opts.Days) * 24 * time.Hour
	ids, lineErrs, err := symstore.ExpiredFromServer(server, opts.Tag, maxAge, now().UTC())
	for _, le := range lineErrs {
		slog.Warn("skipping malformed history line", "line", le.Line, "reason", le.Message)
	}
	if err != nil {
		return fail(formatter, CodeHistory, ExitCommandError, "failed to read symbol history", err)
	}
	formatter.VerboseLog("%d expired transaction(s) for %s", len(ids), opts.Tag)

	result := ExpiredResult{
		Server:  server,
		Tag:     opts.Tag,
		Days:    opts.Days,
		IDs:     ids,
		Skipped: len(lineErrs),
	}
	if result.IDs == nil {
		result.IDs = []string{}
	}

	return formatter.Success(result, func(w io.Writer) {
		for _, id := range result.IDs {
			fmt.Fprintln(w, id)
		}
	})
}
