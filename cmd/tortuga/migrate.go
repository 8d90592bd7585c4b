package main

import (
	"github.com/UnivaCorporation/tortuga-sub001/internal/migrations"
	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := cfg.InitializeDatabase(logger)
		if err != nil {
			return err
		}
		defer ds.Close()

		migrator := migrations.NewMigrator(ds.DB).WithLogger(logger)
		migrator.AddMigrations(migrations.All()...)

		if cmd.Flags().Changed("rollback-to") {
			if err := migrator.RollbackTo(lo.Must(cmd.Flags().GetInt64("rollback-to"))); err != nil {
				return err
			}
		}

		version, err := migrator.GetCurrentVersion()
		if err != nil {
			return err
		}

		cmd.PrintErrln(color.HiGreenString("Database %s is at schema version %d", cfg.ExpandedDBPath(), version))
		return nil
	},
}

func init() {
	migrateCmd.Flags().Int64("rollback-to", 0, "revert migrations newer than this version")
}
