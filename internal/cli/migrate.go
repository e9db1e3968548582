package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/fragstore/internal/app"
	"github.com/alem-hub/fragstore/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/fragstore/pkg/logger"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema to every partition",
		Long: `Connect to each partition database named by the fragment map and
apply pending migrations. With --status, only report what is applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			m, err := app.LoadFragments(cfg)
			if err != nil {
				return err
			}

			base := app.PostgresBase(cfg)
			out := cmd.OutOrStdout()
			for _, p := range m.Partitions() {
				conn, err := postgres.NewConnection(cmd.Context(), postgres.PartitionConfig(base, p))
				if err != nil {
					return fmt.Errorf("%s: %w", p.ID, err)
				}
				migrator := postgres.NewMigrator(conn)

				if status {
					rows, err := migrator.Status(cmd.Context())
					conn.Close()
					if err != nil {
						return fmt.Errorf("%s: %w", p.ID, err)
					}
					for _, r := range rows {
						fmt.Fprintf(out, "%s\t%03d\t%-28s\tapplied=%t\n", p.ID, r.Version, r.Name, r.IsApplied)
					}
					continue
				}

				applied, err := migrator.Migrate(cmd.Context())
				conn.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", p.ID, err)
				}
				log.Info("partition migrated", logger.PartitionID(string(p.ID)), logger.Int("applied", applied))
				fmt.Fprintf(out, "%s\t%d migration(s) applied\n", p.ID, applied)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "print migration status instead of migrating")
	return cmd
}
