package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/slack-connector/common/database"
	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/color"
	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/output"
	"github.com/telhawk-systems/slack-connector/connector/internal/registry"
)

var subscribersCmd = &cobra.Command{
	Use:     "subscribers",
	Aliases: []string{"subs"},
	Short:   "Subscriber registry management",
	Long:    "List, add and remove the blocks that receive routed Slack traffic",
}

var subscribersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List subscribers",
	Long: `List subscribers from the PostgreSQL registry, or from a YAML registry
file with --file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, closeStore, err := openSubscriberStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		kindFilter, _ := cmd.Flags().GetString("kind")
		var ds []registry.Descriptor
		if kindFilter != "" {
			kind, err := registry.ParseKind(kindFilter)
			if err != nil {
				return err
			}
			ds, err = store.ListByKind(ctx, kind)
			if err != nil {
				return fmt.Errorf("failed to list subscribers: %w", err)
			}
		} else {
			ds, err = store.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list subscribers: %w", err)
			}
		}

		if handled, err := output.Structured(outputFormat(cmd), ds); handled {
			return err
		}

		if len(ds) == 0 {
			output.Info("No subscribers registered")
			return nil
		}

		table := output.NewTable([]string{"Block", "Kind", "Channel", "Self Events", "Updated"})
		for _, d := range ds {
			channel := d.ChannelFilter
			if channel == "" {
				channel = "*"
			}
			updated := ""
			if !d.UpdatedAt.IsZero() {
				updated = d.UpdatedAt.Format("2006-01-02 15:04")
			}
			table.AddRow([]string{
				d.BlockID,
				color.Kind(string(d.Kind)),
				channel,
				strconv.FormatBool(d.IncludeSelfEvents),
				updated,
			})
		}
		table.Render()
		output.Info("\n%d subscribers", len(ds))
		return nil
	},
}

var subscribersAddCmd = &cobra.Command{
	Use:   "add [block-id]",
	Short: "Register or update a subscriber",
	Example: `  slackctl subscribers add B-approvals --kind messages --channel C0123
  slackctl subscribers add B-threads --kind conversationThread --include-self`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kindFlag, _ := cmd.Flags().GetString("kind")
		kind, err := registry.ParseKind(kindFlag)
		if err != nil {
			return err
		}
		channel, _ := cmd.Flags().GetString("channel")
		includeSelf, _ := cmd.Flags().GetBool("include-self")

		d := registry.Descriptor{
			BlockID:           args[0],
			Kind:              kind,
			ChannelFilter:     channel,
			IncludeSelfEvents: includeSelf,
		}
		if err := d.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		store, closeStore, err := openPostgresStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := store.Upsert(ctx, d); err != nil {
			return fmt.Errorf("failed to save subscriber: %w", err)
		}
		output.Success("Registered %s for %s", d.BlockID, d.Kind)
		return nil
	},
}

var subscribersRemoveCmd = &cobra.Command{
	Use:     "remove [block-id]",
	Aliases: []string{"rm"},
	Short:   "Remove a subscriber",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, closeStore, err := openPostgresStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := store.Delete(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to remove subscriber: %w", err)
		}
		output.Success("Removed %s", args[0])
		return nil
	},
}

var subscribersExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the PostgreSQL registry as a YAML registry file",
	Long:  "Write the registry in the format the connector's file backend reads. Without a file argument the YAML goes to stdout.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, closeStore, err := openPostgresStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		ds, err := store.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list subscribers: %w", err)
		}
		data, err := registry.MarshalFile(ds)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			_, err = output.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(args[0], data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", args[0], err)
		}
		output.Success("Exported %d subscribers to %s", len(ds), args[0])
		return nil
	},
}

var subscribersImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Upsert every subscriber from a YAML registry file",
	Long:  "Read a registry file (\"-\" for stdin) and upsert each entry into PostgreSQL. Existing subscribers not in the file are kept.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		ds, err := registry.ParseFile(data)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, closeStore, err := openPostgresStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		for _, d := range ds {
			if err := store.Upsert(ctx, d); err != nil {
				return fmt.Errorf("failed to import %s: %w", d.BlockID, err)
			}
		}
		output.Success("Imported %d subscribers", len(ds))
		return nil
	},
}

// openSubscriberStore honours --file for read-only commands.
func openSubscriberStore(ctx context.Context, cmd *cobra.Command) (registry.Store, func(), error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		reg, err := registry.NewFileRegistry(path)
		if err != nil {
			return nil, nil, err
		}
		return reg, func() {}, nil
	}
	return openPostgresStore(ctx, cmd)
}

func openPostgresStore(ctx context.Context, cmd *cobra.Command) (registry.Store, func(), error) {
	p, err := activeProfile(cmd)
	if err != nil {
		return nil, nil, err
	}
	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(p.DatabaseURL))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to registry database: %w", err)
	}
	reg := registry.NewPostgresRegistry(pool)
	return reg, reg.Close, nil
}

// readInput reads a named file, or stdin for "-".
func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func init() {
	rootCmd.AddCommand(subscribersCmd)
	subscribersCmd.AddCommand(subscribersListCmd)
	subscribersCmd.AddCommand(subscribersAddCmd)
	subscribersCmd.AddCommand(subscribersRemoveCmd)
	subscribersCmd.AddCommand(subscribersExportCmd)
	subscribersCmd.AddCommand(subscribersImportCmd)

	subscribersListCmd.Flags().String("kind", "", "only subscribers of this kind (messages, appMention, reactions, conversationThread)")
	subscribersListCmd.Flags().String("file", "", "read a YAML registry file instead of PostgreSQL")

	subscribersAddCmd.Flags().String("kind", "", "subscriber kind (required)")
	subscribersAddCmd.Flags().String("channel", "", "only deliver events from this channel")
	subscribersAddCmd.Flags().Bool("include-self", false, "also deliver events authored by the connector's bot")
	_ = subscribersAddCmd.MarkFlagRequired("kind")
}
