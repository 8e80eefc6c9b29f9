package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shelfsync/internal/config"
	"github.com/roach88/shelfsync/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Token  string
	Status string
	Since  string
	Entity string
	Limit  int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync cycles from the journal",
		Long: `Query the cycle journal, newest first.

Without flags the most recent cycles are listed. Filters narrow the
list; --token shows one cycle in full, including the files it
published.

Examples:
  shelfsync history
  shelfsync history --status failed --since 2026-03-01T00:00:00Z
  shelfsync history --entity stock --limit 5
  shelfsync history --token 0198a2c4-3f01-7e22-b3a1-8c5d9e0f1a2b`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Token, "token", "", "show one cycle by token")
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by outcome (ok|partial|failed)")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only cycles started at or after this RFC3339 time")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "only cycles that published this entity")
	cmd.Flags().IntVar(&opts.Limit, "limit", journal.DefaultListLimit, "maximum cycles to list")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default()
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "loading settings", err)
	}

	jnl, err := journal.Open(cfg.JournalFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening journal", err)
	}
	defer jnl.Close()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Token != "" {
		return historyDetail(ctx, jnl, formatter, opts.Token)
	}
	return historyList(ctx, jnl, formatter, opts)
}

func historyDetail(ctx context.Context, jnl *journal.Journal, formatter *OutputFormatter, token string) error {
	cycle, err := jnl.Get(ctx, token)
	if errors.Is(err, journal.ErrNotFound) {
		if ferr := formatter.Failure("no cycle with token " + token); ferr != nil {
			return ferr
		}
		return NewExitError(ExitFailure, "cycle not found")
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "reading journal", err)
	}

	return formatter.Success(cycle, func(w io.Writer) {
		renderCycleDetail(w, cycle)
	})
}

func historyList(ctx context.Context, jnl *journal.Journal, formatter *OutputFormatter, opts *HistoryOptions) error {
	filter := journal.Filter{
		Entity: opts.Entity,
		Limit:  opts.Limit,
	}
	if opts.Status != "" {
		status := journal.Status(opts.Status)
		if !status.Valid() {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q: must be ok, partial or failed", opts.Status))
		}
		filter.Status = status
	}
	if opts.Since != "" {
		since, err := time.Parse(time.RFC3339, opts.Since)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --since time", err)
		}
		filter.Since = since
	}

	cycles, err := jnl.List(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading journal", err)
	}

	return formatter.Success(cycles, func(w io.Writer) {
		renderCycleList(w, cycles)
	})
}

func renderCycleList(w io.Writer, cycles []journal.Cycle) {
	if len(cycles) == 0 {
		fmt.Fprintln(w, "No cycles recorded.")
		return
	}
	for _, c := range cycles {
		mode := ""
		if c.DryRun {
			mode = " dry-run"
		}
		fmt.Fprintf(w, "%s  %-7s +%d ~%d -%d =%d  dropped %d  outputs %d%s  %s\n",
			c.StartedUTC.UTC().Format(time.RFC3339),
			c.Status,
			c.Added, c.Modified, c.Removed, c.Unchanged,
			c.Dropped,
			len(c.Outputs),
			mode,
			truncateToken(c.Token))
	}
}

func renderCycleDetail(w io.Writer, c *journal.Cycle) {
	fmt.Fprintf(w, "Cycle %s\n", c.Token)
	fmt.Fprintf(w, "Status:   %s\n", c.Status)
	if c.DryRun {
		fmt.Fprintln(w, "Mode:     dry run")
	}
	fmt.Fprintf(w, "Started:  %s\n", c.StartedUTC.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Finished: %s\n", c.FinishedUTC.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Sources:  %d\n", c.Sources)
	fmt.Fprintf(w, "Changes:  +%d ~%d -%d =%d, dropped %d, parse errors %d\n",
		c.Added, c.Modified, c.Removed, c.Unchanged, c.Dropped, c.ParseErrors)
	if c.Error != "" {
		fmt.Fprintf(w, "Errors:   %s\n", c.Error)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Outputs ===")
	if len(c.Outputs) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, out := range c.Outputs {
		fmt.Fprintf(w, "  %s: %s (%d records)\n", out.Entity, out.Path, out.Records)
	}
}

// truncateToken shortens a cycle token for list display.
func truncateToken(token string) string {
	if len(token) <= 16 {
		return token
	}
	return token[:8] + "..." + token[len(token)-8:]
}
