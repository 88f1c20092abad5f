package cmd

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/slack-connector/connector/cli/internal/client"
	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/color"
	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check a running connector's health and readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := activeProfile(cmd)
		if err != nil {
			return err
		}
		c := client.NewConnectorClient(p.ConnectorURL, p.HTTPPrefix, p.SigningSecret)

		if err := c.Health(cmd.Context()); err != nil {
			return fmt.Errorf("connector at %s is not healthy: %w", p.ConnectorURL, err)
		}

		ready, err := c.Ready(cmd.Context())
		if err != nil {
			return err
		}

		if handled, err := output.Structured(outputFormat(cmd), ready); handled {
			return err
		}

		output.Info("%s  %s  %s", p.ConnectorURL, color.HTTPStatus(ready.StatusCode), ready.Status)
		if len(ready.Failures) == 0 {
			output.Success("All dependencies ready")
			return nil
		}

		names := make([]string, 0, len(ready.Failures))
		for name := range ready.Failures {
			names = append(names, name)
		}
		sort.Strings(names)

		table := output.NewTable([]string{"Dependency", "Error"})
		for _, name := range names {
			table.AddRow([]string{name, ready.Failures[name]})
		}
		table.Render()

		if ready.StatusCode != http.StatusOK {
			return fmt.Errorf("connector is not ready")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
