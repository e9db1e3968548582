package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alem-hub/fragstore/config"
	"github.com/alem-hub/fragstore/internal/app"
)

// NewFragmentsCommand creates the fragments command.
func NewFragmentsCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "fragments",
		Short: "Print the routing table",
		Long: `Print the tenant, partitions and per-domain study-year rules in use.
The table comes from --file, FRAGMENT_MAP_FILE, or the built-in default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.Config{}
			if file == "" {
				loaded, err := config.Load()
				if err != nil {
					return err
				}
				cfg = loaded
			} else {
				cfg.Storage.FragmentMapFile = file
			}

			m, err := app.LoadFragments(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(m.File())
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(m.File()); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "fragment map YAML file")
	return cmd
}
