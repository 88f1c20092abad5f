package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/output"
	"github.com/telhawk-systems/slack-connector/connector/internal/correlation"
	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
)

var correlationsCmd = &cobra.Command{
	Use:     "correlations",
	Aliases: []string{"corr"},
	Short:   "Inspect and edit correlation records",
	Long: `Correlation records map a message ts or view id to the subscriber block
that produced it, so interactions on that artifact reach only that block.`,
}

var correlationsGetCmd = &cobra.Command{
	Use:   "get [subject-id]",
	Short: "Show which block owns a message ts or view id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, inst, closeStore, err := openCorrelationStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		rec, found, err := store.Lookup(ctx, inst, args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no correlation record for %s in team %s", args[0], inst.Namespace())
		}

		if handled, err := output.Structured(outputFormat(cmd), rec); handled {
			return err
		}

		table := output.NewTable([]string{"Subject", "Block", "Origin Request", "Team", "Created"})
		table.AddRow([]string{
			rec.SubjectID,
			rec.BlockID,
			rec.OriginatingRequestID,
			rec.TeamID,
			rec.CreatedAt.Format(time.RFC3339),
		})
		table.Render()
		return nil
	},
}

var correlationsRecordCmd = &cobra.Command{
	Use:   "record [subject-id] [block-id]",
	Short: "Assign a message ts or view id to a block",
	Long:  "Write a correlation record by hand, e.g. for an artifact posted outside the connector.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, inst, closeStore, err := openCorrelationStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		requestID, _ := cmd.Flags().GetString("request-id")
		if err := store.Record(ctx, inst, args[0], args[1], requestID); err != nil {
			return err
		}
		output.Success("Recorded %s -> %s (expires in %s)", args[0], args[1], store.TTL())
		return nil
	},
}

var correlationsForgetCmd = &cobra.Command{
	Use:     "forget [subject-id]",
	Aliases: []string{"rm"},
	Short:   "Delete a correlation record",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, inst, closeStore, err := openCorrelationStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := store.Forget(ctx, inst, args[0]); err != nil {
			return err
		}
		output.Success("Forgot %s", args[0])
		return nil
	},
}

func openCorrelationStore(ctx context.Context, cmd *cobra.Command) (*correlation.Store, installation.Installation, func(), error) {
	p, err := activeProfile(cmd)
	if err != nil {
		return nil, installation.Installation{}, nil, err
	}

	kv, err := correlation.DialRedis(ctx, p.RedisURL)
	if err != nil {
		return nil, installation.Installation{}, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	opts := []correlation.StoreOption{correlation.WithKeyPrefix(p.KeyPrefix)}
	if ttl, _ := cmd.Flags().GetDuration("ttl"); ttl > 0 {
		opts = append(opts, correlation.WithTTL(ttl))
	}

	return correlation.NewStore(kv, opts...), correlationInstallation(p.TeamID), func() { _ = kv.Close() }, nil
}

// correlationInstallation scopes CLI lookups to teamID. The connector always
// knows its team from auth.test, so an unset team_id here reads and writes a
// namespace the connector never uses.
func correlationInstallation(teamID string) installation.Installation {
	inst := installation.Installation{TeamID: teamID}
	if teamID == "" {
		output.Notice("team_id is not set on this profile; using the %q namespace, which the connector does not read. Set it with: slackctl profile set --team-id <T...>", inst.Namespace())
	}
	return inst
}

func init() {
	rootCmd.AddCommand(correlationsCmd)
	correlationsCmd.AddCommand(correlationsGetCmd)
	correlationsCmd.AddCommand(correlationsRecordCmd)
	correlationsCmd.AddCommand(correlationsForgetCmd)

	correlationsRecordCmd.Flags().Duration("ttl", 0, "record lifetime (default: the store default, 7 days)")
	correlationsRecordCmd.Flags().String("request-id", "", "originating request id to store with the record")
}
