package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/slack-connector/common/logging"
	natsclient "github.com/telhawk-systems/slack-connector/common/messaging/nats"
	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/output"
	"github.com/telhawk-systems/slack-connector/connector/internal/dispatch"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dispatch dead-letter stream",
	Long:  "Deliveries that could not be published to a block's subject are kept in the CONNECTOR_DLQ JetStream stream.",
}

var dlqListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List failed deliveries without consuming them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dlq, closeDLQ, err := openDLQ(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeDLQ()

		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := dlq.List(ctx, limit)
		if err != nil {
			return err
		}

		if handled, err := output.Structured(outputFormat(cmd), entries); handled {
			return err
		}

		if len(entries) == 0 {
			output.Success("Dead-letter stream is empty")
			return nil
		}

		table := output.NewTable([]string{"Time", "Block", "Type", "Channel", "Dedup Key", "Error"})
		for _, e := range entries {
			table.AddRow([]string{
				e.Timestamp.Format(time.RFC3339),
				e.BlockID,
				e.Envelope.Type,
				e.Envelope.Channel,
				e.Envelope.DedupKey,
				truncate(e.Error, 60),
			})
		}
		table.Render()
		output.Info("\n%d failed deliveries", len(entries))
		return nil
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every entry in the dead-letter stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to purge without --yes")
		}

		ctx := cmd.Context()
		dlq, closeDLQ, err := openDLQ(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeDLQ()

		if err := dlq.Purge(ctx); err != nil {
			return err
		}
		output.Success("Purged %s", natsclient.DLQStream.Name)
		return nil
	},
}

func openDLQ(ctx context.Context, cmd *cobra.Command) (*dispatch.JetStreamDLQ, func(), error) {
	p, err := activeProfile(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger := cliLogger()
	js, err := natsclient.NewJetStreamClient(natsConfig(p.NATSURL, logger))
	if err != nil {
		return nil, nil, err
	}

	dlq, err := dispatch.NewJetStreamDLQ(ctx, js, logger.Logger)
	if err != nil {
		_ = js.Close()
		return nil, nil, err
	}
	return dlq, func() { _ = js.Close() }, nil
}

// natsConfig fails fast instead of reconnecting forever like the connector.
func natsConfig(url string, logger *logging.Logger) natsclient.Config {
	cfg := natsclient.DefaultConfig()
	cfg.URL = url
	cfg.Name = "slackctl"
	cfg.MaxReconnects = 0
	cfg.Logger = logger.Logger
	return cfg
}

// cliLogger keeps library logging on stderr and out of structured output.
func cliLogger() *logging.Logger {
	return logging.NewWithWriter(os.Stderr, slog.LevelWarn, "text")
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqPurgeCmd)

	dlqListCmd.Flags().Int("limit", 100, "maximum entries to show")
	dlqPurgeCmd.Flags().Bool("yes", false, "confirm the purge")
}
