package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/slack-connector/connector/cli/internal/config"
	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/output"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
	Long:  "Store connector, database, Redis and NATS endpoints per deployment in ~/.slackctl/config.yaml",
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		if handled, err := output.Structured(outputFormat(cmd), cfg.Profiles); handled {
			return err
		}

		if len(names) == 0 {
			output.Info("No profiles saved; defaults and SLACKCTL_* variables apply")
			return nil
		}

		table := output.NewTable([]string{"Current", "Name", "Connector", "Team"})
		for _, name := range names {
			current := ""
			if name == cfg.CurrentProfile {
				current = "*"
			}
			p := cfg.Profiles[name]
			table.AddRow([]string{current, name, p.ConnectorURL, p.TeamID})
		}
		table.Render()
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved profile",
	Long:  "Show the active profile after defaults and SLACKCTL_* overrides are applied. The signing secret is masked.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := activeProfile(cmd)
		if err != nil {
			return err
		}
		shown := *p
		shown.SigningSecret = mask(shown.SigningSecret)

		if handled, err := output.Structured(outputFormat(cmd), shown); handled {
			return err
		}

		table := output.NewTable([]string{"Setting", "Value"})
		table.AddRow([]string{"connector_url", shown.ConnectorURL})
		table.AddRow([]string{"http_prefix", shown.HTTPPrefix})
		table.AddRow([]string{"signing_secret", shown.SigningSecret})
		table.AddRow([]string{"team_id", shown.TeamID})
		table.AddRow([]string{"database_url", shown.DatabaseURL})
		table.AddRow([]string{"migrations_dir", shown.MigrationsDir})
		table.AddRow([]string{"redis_url", shown.RedisURL})
		table.AddRow([]string{"key_prefix", shown.KeyPrefix})
		table.AddRow([]string{"nats_url", shown.NATSURL})
		table.Render()
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set [name]",
	Short: "Create or update a profile and make it current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		p, ok := cfg.Profiles[name]
		if !ok {
			p = &config.Profile{}
		}

		for flag, dst := range map[string]*string{
			"connector-url":  &p.ConnectorURL,
			"http-prefix":    &p.HTTPPrefix,
			"signing-secret": &p.SigningSecret,
			"team-id":        &p.TeamID,
			"database-url":   &p.DatabaseURL,
			"migrations-dir": &p.MigrationsDir,
			"redis-url":      &p.RedisURL,
			"key-prefix":     &p.KeyPrefix,
			"nats-url":       &p.NATSURL,
		} {
			if cmd.Flags().Changed(flag) {
				*dst, _ = cmd.Flags().GetString(flag)
			}
		}

		if err := cfg.SaveProfile(name, p); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		output.Success("Saved profile %s to %s", name, cfg.Path())
		return nil
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Switch the current profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := cfg.GetProfile(args[0]); err != nil {
			return err
		}
		cfg.CurrentProfile = args[0]
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		output.Success("Now using profile %s", args[0])
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:     "remove [name]",
	Aliases: []string{"rm"},
	Short:   "Delete a profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RemoveProfile(args[0]); err != nil {
			return err
		}
		output.Success("Removed profile %s", args[0])
		return nil
	},
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileRemoveCmd)

	profileSetCmd.Flags().String("connector-url", "", "connector base URL")
	profileSetCmd.Flags().String("http-prefix", "", "webhook path prefix")
	profileSetCmd.Flags().String("signing-secret", "", "Slack signing secret")
	profileSetCmd.Flags().String("team-id", "", "Slack team id")
	profileSetCmd.Flags().String("database-url", "", "subscriber registry PostgreSQL URL")
	profileSetCmd.Flags().String("migrations-dir", "", "migrations directory")
	profileSetCmd.Flags().String("redis-url", "", "correlation store Redis URL")
	profileSetCmd.Flags().String("key-prefix", "", "correlation key prefix")
	profileSetCmd.Flags().String("nats-url", "", "NATS server URL")
}
