package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shelfsync/internal/engine"
	"github.com/roach88/shelfsync/internal/journal"
)

// OnceOptions holds flags for the once command.
type OnceOptions struct {
	*RootOptions
	DryRun bool
}

// CycleSummary is the once command's output payload.
type CycleSummary struct {
	Token       string          `json:"token"`
	Status      string          `json:"status"`
	DryRun      bool            `json:"dry_run"`
	StartedUTC  time.Time       `json:"started_utc"`
	FinishedUTC time.Time       `json:"finished_utc"`
	Sources     []SourceSummary `json:"sources"`
	Error       string          `json:"error,omitempty"`
}

// SourceSummary is one snapshot's slice of the cycle summary.
type SourceSummary struct {
	Source      string `json:"source"`
	Entity      string `json:"entity,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
	Rows        int    `json:"rows"`
	Added       int    `json:"added"`
	Modified    int    `json:"modified"`
	Removed     int    `json:"removed"`
	Unchanged   int    `json:"unchanged"`
	Dropped     int    `json:"dropped"`
	ParseErrors int    `json:"parse_errors"`
	Duplicates  int    `json:"duplicates"`
	Output      string `json:"output,omitempty"`
	Records     int    `json:"records,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewOnceCommand creates the once command.
func NewOnceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OnceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run exactly one sync cycle and exit",
		Long: `Run one sync cycle and exit with the cycle's outcome.

The exit code reflects the result: 0 when every source synchronized,
1 when any source failed. Suitable for cron or a systemd timer in
place of the daemon.

Example:
  shelfsync once --config shelfsync.json
  shelfsync once --config shelfsync.json --dry-run --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "detect and transform without publishing or committing")

	return cmd
}

func runOnce(opts *OnceOptions, cmd *cobra.Command) error {
	cfg, err := initRuntime(opts.RootOptions)
	if err != nil {
		return err
	}

	eng, jnl, err := buildEngine(cfg, opts.DryRun)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := jnl.Close(); closeErr != nil {
			slog.Error("closing journal", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// RunCycle's error is already folded into the result; the result
	// is the single reporting surface.
	res, _ := eng.RunCycle(ctx)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	summary := summarize(res)
	if err := formatter.Success(summary, func(w io.Writer) {
		renderCycle(w, summary)
	}); err != nil {
		return err
	}

	if res.Status() != journal.StatusOK {
		return NewExitError(ExitFailure, "cycle "+string(res.Status()))
	}
	return nil
}

// summarize flattens a cycle result into its output payload.
func summarize(res *engine.CycleResult) CycleSummary {
	s := CycleSummary{
		Token:       res.Token,
		Status:      string(res.Status()),
		DryRun:      res.DryRun,
		StartedUTC:  res.StartedUTC,
		FinishedUTC: res.FinishedUTC,
		Error:       res.ErrorText(),
	}
	for _, src := range res.Sources {
		ss := SourceSummary{
			Source:      src.Source,
			Entity:      src.Entity,
			Skipped:     src.Skipped,
			Rows:        src.Rows,
			Added:       src.Added,
			Modified:    src.Modified,
			Removed:     src.Removed,
			Unchanged:   src.Unchanged,
			Dropped:     src.Dropped,
			ParseErrors: src.ParseErrors,
			Duplicates:  src.Duplicates,
			Output:      src.Published,
			Records:     src.Records,
		}
		if src.Err != nil {
			ss.Error = src.Err.Error()
		}
		s.Sources = append(s.Sources, ss)
	}
	return s
}

// renderCycle prints a cycle summary as text.
func renderCycle(w io.Writer, s CycleSummary) {
	mode := ""
	if s.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "Cycle %s%s\n", s.Token, mode)
	fmt.Fprintf(w, "Status: %s\n", s.Status)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Sources ===")
	if len(s.Sources) == 0 {
		fmt.Fprintln(w, "  (no snapshots matched)")
	}
	for _, src := range s.Sources {
		switch {
		case src.Skipped:
			fmt.Fprintf(w, "  %s: skipped (no mapping profile)\n", src.Source)
		case src.Error != "":
			fmt.Fprintf(w, "  %s: %s\n", src.Source, src.Error)
		default:
			fmt.Fprintf(w, "  %s -> %s\n", src.Source, src.Entity)
			fmt.Fprintf(w, "    rows %d, added %d, modified %d, removed %d, unchanged %d, dropped %d\n",
				src.Rows, src.Added, src.Modified, src.Removed, src.Unchanged, src.Dropped)
			if src.Output != "" {
				fmt.Fprintf(w, "    published %s (%d records)\n", src.Output, src.Records)
			} else if src.Added+src.Modified+src.Removed == 0 {
				fmt.Fprintln(w, "    no changes")
			}
		}
	}

	if s.Error != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %s\n", s.Error)
	}
}
