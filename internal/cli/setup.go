package cli

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/shelfsync/internal/config"
	"github.com/roach88/shelfsync/internal/detect"
	"github.com/roach88/shelfsync/internal/engine"
	"github.com/roach88/shelfsync/internal/journal"
	"github.com/roach88/shelfsync/internal/mapping"
	"github.com/roach88/shelfsync/internal/publish"
	"github.com/roach88/shelfsync/internal/source"
)

// initRuntime loads the settings document and configures the default
// logger from it. A missing settings file is not an error: the engine
// runs on schema defaults.
func initRuntime(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	usingDefaults := false
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default()
		usingDefaults = true
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading settings", err)
	}

	setupLogging(cfg, opts.Verbose)
	if usingDefaults {
		slog.Info("settings file not found, using defaults", "path", opts.ConfigPath)
	} else {
		slog.Debug("settings loaded", "path", opts.ConfigPath)
	}
	return cfg, nil
}

// setupLogging points the default logger at stderr and, when LOG_DIR
// is set, tees it into a size-rotated file.
func setupLogging(cfg *config.Config, verbose bool) {
	level := slog.LevelInfo
	if verbose || cfg.DebugMode {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if cfg.LogDir != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "shelfsync.log"),
			MaxSize:    20, // megabytes
			MaxBackups: 10,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadCatalog compiles either the built-in mapping profiles or, when
// MAPPINGS_DIR is set, the operator's override directory.
func loadCatalog(cfg *config.Config) (*mapping.Catalog, error) {
	if cfg.MappingsDir == "" {
		return mapping.LoadBuiltin()
	}
	return mapping.LoadDir(cfg.MappingsDir)
}

// buildEngine wires the full pipeline from validated settings. The
// returned journal must be closed by the caller.
func buildEngine(cfg *config.Config, dryRun bool) (*engine.Engine, *journal.Journal, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "loading mapping profiles", err)
	}

	snapEnc, err := cfg.SnapshotEncoding()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "resolving snapshot encoding", err)
	}

	reader := source.NewReader(source.NewDBFDecoder(snapEnc), source.ReaderOptions{
		Backoff:     cfg.RetryPolicy(),
		LockTimeout: cfg.LockWait(),
		LockPoll:    cfg.LockPoll(),
	})

	pub, err := publish.New(publish.Options{
		Dir:         cfg.OutputDir,
		Delimiter:   cfg.Delimiter(),
		Encoding:    cfg.CSVEncoding,
		BatchSize:   cfg.BatchSize,
		BackupCount: cfg.PreserveBackups,
		Backoff:     cfg.RetryPolicy(),
	})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "configuring publisher", err)
	}

	jnl, err := journal.Open(cfg.JournalFile)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "opening journal", err)
	}

	eng := engine.New(engine.Options{
		InputDir:  cfg.InputDir,
		Patterns:  cfg.MonitorPatterns,
		Reader:    reader,
		Catalog:   catalog,
		State:     detect.NewStore(cfg.StateFile),
		Publisher: pub,
		Journal:   jnl,
		DryRun:    dryRun,
	})
	return eng, jnl, nil
}
