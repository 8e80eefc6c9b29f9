package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shelfsync/internal/config"
	"github.com/roach88/shelfsync/internal/publish"
)

// ValidationResult holds the validate command's findings.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Settings string   `json:"settings"`
	Profiles []string `json:"profiles,omitempty"`
	Issues   []string `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check settings and mapping profiles without running",
		Long: `Validate the settings document and compile the mapping profiles
without touching the input or output directories.

Checks the JSON settings against the schema, compiles either the
built-in profiles or MAPPINGS_DIR, and resolves both configured text
encodings. Exit code 1 reports findings; nothing is written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{Settings: opts.ConfigPath}

	cfg, err := config.Load(opts.ConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		result.Settings = opts.ConfigPath + " (not found, defaults apply)"
		cfg, err = config.Default()
	}
	if err != nil {
		result.Issues = append(result.Issues, err.Error())
		return emitValidation(formatter, result)
	}
	formatter.VerboseLog("settings ok: %s", opts.ConfigPath)

	catalog, err := loadCatalog(cfg)
	if err != nil {
		result.Issues = append(result.Issues, err.Error())
	} else {
		result.Profiles = catalogProfileNames(catalog)
		formatter.VerboseLog("profiles ok: %d compiled", len(catalog.Profiles))
	}

	if _, err := cfg.SnapshotEncoding(); err != nil {
		result.Issues = append(result.Issues, err.Error())
	}
	if _, err := publish.New(publish.Options{
		Dir:       cfg.OutputDir,
		Delimiter: cfg.Delimiter(),
		Encoding:  cfg.CSVEncoding,
	}); err != nil {
		result.Issues = append(result.Issues, err.Error())
	}

	return emitValidation(formatter, result)
}

func emitValidation(formatter *OutputFormatter, result ValidationResult) error {
	result.Valid = len(result.Issues) == 0

	if err := formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Settings: %s\n", result.Settings)
		if len(result.Profiles) > 0 {
			fmt.Fprintf(w, "Profiles: %s\n", strings.Join(result.Profiles, ", "))
		}
		if result.Valid {
			fmt.Fprintln(w, "OK")
			return
		}
		fmt.Fprintln(w)
		for _, issue := range result.Issues {
			fmt.Fprintf(w, "  - %s\n", issue)
		}
	}); err != nil {
		return err
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}
