package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/slack-connector/common/database"
	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/output"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Subscriber registry schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd, database.Up)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd, database.Down)
	},
}

func runMigrate(cmd *cobra.Command, direction database.Direction) error {
	p, err := activeProfile(cmd)
	if err != nil {
		return err
	}
	dir := p.MigrationsDir
	if cmd.Flags().Changed("dir") {
		dir, _ = cmd.Flags().GetString("dir")
	}

	version, err := database.Migrate(dir, p.DatabaseURL, direction)
	if err != nil {
		return err
	}

	if handled, err := output.Structured(outputFormat(cmd), map[string]interface{}{
		"direction": string(direction),
		"version":   version,
	}); handled {
		return err
	}
	output.Success("Migrated %s, schema at version %s", direction, versionLabel(version))
	return nil
}

func versionLabel(v uint) string {
	if v == 0 {
		return "none"
	}
	return fmt.Sprint(v)
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateCmd.PersistentFlags().String("dir", "", "migrations directory (default: from profile)")
}
