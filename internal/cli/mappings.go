package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shelfsync/internal/mapping"
)

// ProfileView is one mapping profile in the mappings command output.
type ProfileView struct {
	Name     string   `json:"name"`
	Match    []string `json:"match"`
	Key      []string `json:"key"`
	Price    []string `json:"price"`
	Quantity []string `json:"quantity"`
	Ref      []string `json:"ref,omitempty"`
	Exclude  []string `json:"exclude,omitempty"`
}

// MappingsResult is the mappings command's output payload.
type MappingsResult struct {
	Source   string        `json:"source"` // "built-in" or the override directory
	Profiles []ProfileView `json:"profiles"`
}

// NewMappingsCommand creates the mappings command.
func NewMappingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Print the compiled mapping catalog",
		Long: `Compile the mapping profiles and print the resulting alias tables.

Shows, per profile, which filename patterns claim a snapshot and which
legacy column names resolve to each canonical field. Alias order is
resolution order: the first alias present in a record wins.

Example:
  shelfsync mappings
  shelfsync mappings --config shelfsync.json --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMappings(rootOpts, cmd)
		},
	}

	return cmd
}

func runMappings(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := initRuntime(opts)
	if err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return WrapExitError(ExitFailure, "compiling mapping profiles", err)
	}

	result := MappingsResult{Source: "built-in"}
	if cfg.MappingsDir != "" {
		result.Source = cfg.MappingsDir
	}
	for _, p := range catalog.Profiles {
		result.Profiles = append(result.Profiles, ProfileView{
			Name:     p.Name,
			Match:    p.Match,
			Key:      p.Key,
			Price:    p.Price,
			Quantity: p.Quantity,
			Ref:      p.Ref,
			Exclude:  p.Exclude,
		})
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	return formatter.Success(result, func(w io.Writer) {
		renderMappings(w, result)
	})
}

func renderMappings(w io.Writer, result MappingsResult) {
	fmt.Fprintf(w, "Profiles: %d (%s)\n", len(result.Profiles), result.Source)
	for _, p := range result.Profiles {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "=== %s ===\n", p.Name)
		fmt.Fprintf(w, "  Match:    %s\n", strings.Join(p.Match, ", "))
		fmt.Fprintf(w, "  Key:      %s\n", strings.Join(p.Key, ", "))
		fmt.Fprintf(w, "  Price:    %s\n", strings.Join(p.Price, ", "))
		fmt.Fprintf(w, "  Quantity: %s\n", strings.Join(p.Quantity, ", "))
		if len(p.Ref) > 0 {
			fmt.Fprintf(w, "  Ref:      %s\n", strings.Join(p.Ref, ", "))
		}
		if len(p.Exclude) > 0 {
			fmt.Fprintf(w, "  Exclude:  %s\n", strings.Join(p.Exclude, ", "))
		}
	}
}

// catalogProfileNames is a small helper shared with validate.
func catalogProfileNames(c *mapping.Catalog) []string {
	names := make([]string, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		names = append(names, p.Name)
	}
	return names
}
