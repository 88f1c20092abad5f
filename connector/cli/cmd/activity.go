package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/output"
	"github.com/telhawk-systems/slack-connector/connector/internal/activity"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show per-team webhook activity recorded by the connector",
}

var activityShowCmd = &cobra.Command{
	Use:   "show [team-id]",
	Short: "Show activity for one team (default: the profile's team)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, team, err := openActivityClient(ctx, cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if len(args) == 1 {
			team = args[0]
		}
		if team == "" {
			return fmt.Errorf("team id required: pass one or set team_id on the profile")
		}

		stats, err := c.GetStats(ctx, team)
		if err != nil {
			return err
		}
		if handled, err := output.Structured(outputFormat(cmd), stats); handled {
			return err
		}

		if stats.LastSeenAt == nil {
			output.Info("No activity recorded for %s", team)
			return nil
		}

		table := output.NewTable([]string{"Field", "Value"})
		table.AddRow([]string{"Team", stats.TeamID})
		table.AddRow([]string{"Last seen", stats.LastSeenAt.Format(time.RFC3339)})
		table.AddRow([]string{"Last type", stats.LastType})
		table.AddRow([]string{"Events", strconv.FormatInt(stats.TotalEvents, 10)})
		table.AddRow([]string{"Interactions", strconv.FormatInt(stats.TotalInteractions, 10)})
		table.AddRow([]string{"Dispatched", strconv.FormatInt(stats.TotalDispatched, 10)})
		table.AddRow([]string{"Last hour", strconv.FormatInt(stats.PayloadsLastHour, 10)})
		table.AddRow([]string{"Last 24h", strconv.FormatInt(stats.PayloadsLast24h, 10)})
		table.AddRow([]string{"Users today", strconv.FormatInt(stats.UniqueUsersToday, 10)})
		table.Render()

		if len(stats.Instances) > 0 {
			output.Info("\nReplicas")
			names := make([]string, 0, len(stats.Instances))
			for name := range stats.Instances {
				names = append(names, name)
			}
			sort.Strings(names)
			replicas := output.NewTable([]string{"Instance", "Last Seen"})
			for _, name := range names {
				replicas.AddRow([]string{name, stats.Instances[name]})
			}
			replicas.Render()
		}
		return nil
	},
}

var activityListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List teams with recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, _, err := openActivityClient(ctx, cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		since, _ := cmd.Flags().GetDuration("since")
		teams, err := c.ListActiveTeams(ctx, since)
		if err != nil {
			return err
		}
		sort.Strings(teams)

		all := make([]*activity.Stats, 0, len(teams))
		for _, team := range teams {
			stats, err := c.GetStats(ctx, team)
			if err != nil {
				return err
			}
			all = append(all, stats)
		}

		if handled, err := output.Structured(outputFormat(cmd), all); handled {
			return err
		}
		if len(all) == 0 {
			output.Info("No teams active in the last %s", since)
			return nil
		}

		table := output.NewTable([]string{"Team", "Last Seen", "Last 24h", "Events", "Interactions"})
		for _, s := range all {
			lastSeen := ""
			if s.LastSeenAt != nil {
				lastSeen = s.LastSeenAt.Format(time.RFC3339)
			}
			table.AddRow([]string{
				s.TeamID,
				lastSeen,
				strconv.FormatInt(s.PayloadsLast24h, 10),
				strconv.FormatInt(s.TotalEvents, 10),
				strconv.FormatInt(s.TotalInteractions, 10),
			})
		}
		table.Render()
		return nil
	},
}

func openActivityClient(ctx context.Context, cmd *cobra.Command) (*activity.Client, string, error) {
	p, err := activeProfile(cmd)
	if err != nil {
		return nil, "", err
	}
	c, err := activity.NewClient(ctx, p.RedisURL, "slackctl", activity.WithKeyPrefix(p.KeyPrefix))
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to redis: %w", err)
	}
	return c, p.TeamID, nil
}

func init() {
	rootCmd.AddCommand(activityCmd)
	activityCmd.AddCommand(activityShowCmd)
	activityCmd.AddCommand(activityListCmd)

	activityListCmd.Flags().Duration("since", 24*time.Hour, "only teams seen within this window")
}
