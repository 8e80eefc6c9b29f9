package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/shelfsync/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	DryRun bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long: `Run sync cycles on the configured interval until interrupted.

Cycles never overlap: a tick that fires while a cycle is still running
is dropped. The first interrupt lets the current cycle finish its
publish and commit; a second interrupt exits immediately.

Example:
  shelfsync run --config shelfsync.json
  shelfsync run --config shelfsync.json --dry-run --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "detect and transform without publishing or committing")

	return cmd
}

func runDaemon(opts *RunOptions, cmd *cobra.Command) error {
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

	// Use the command's context if set (for testing), otherwise
	// create one.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("signal received, stopping after the current cycle", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			return
		}
		sig := <-sigChan
		slog.Warn("second signal, exiting now", "signal", sig.String())
		os.Exit(ExitFailure)
	}()

	sched := engine.NewScheduler(eng, cfg.CycleInterval(), slog.Default())

	slog.Info("daemon starting",
		"input_dir", cfg.InputDir,
		"output_dir", cfg.OutputDir,
		"interval", cfg.CycleInterval().String(),
		"dry_run", opts.DryRun)
	fmt.Fprintln(cmd.OutOrStdout(), "shelfsync started. Press Ctrl-C to stop.")

	if err := sched.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}

	slog.Info("daemon stopped")
	return nil
}
