package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/slack-connector/connector/cli/internal/client"
	"github.com/telhawk-systems/slack-connector/connector/cli/internal/simulator"
	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/color"
	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/output"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Send signed fake Slack traffic to a running connector",
	Long: fmt.Sprintf(`Generate Events API and interactivity payloads with gofakeit, sign them
with the profile's signing secret and POST them to the connector.

Kinds: %s

Configuration cascade (priority order):
  1. Command-line flags
  2. ./simulate.yaml (project directory)
  3. ~/.slackctl/simulate.yaml (user directory)
  4. Built-in defaults`, strings.Join(simulator.KindNames(), ", ")),
	Example: `  # 50 mixed events
  slackctl simulate --count 50

  # Click a button on a message the connector posted
  slackctl simulate --kinds block_actions --message-ts 1700000000.000100 --count 1

  # Check that stale requests are rejected
  slackctl simulate --count 3 --skew -10m`,
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	scenario, _ := cmd.Flags().GetString("scenario")
	simCfg, err := simulator.LoadConfig(scenario)
	if err != nil {
		return err
	}
	applySimulateFlags(cmd, &simCfg.Defaults)
	if err := simCfg.Validate(); err != nil {
		return err
	}

	p, err := activeProfile(cmd)
	if err != nil {
		return err
	}
	if p.SigningSecret == "" {
		output.Warn("No signing secret configured; requests will be sent unsigned and rejected")
	}

	skew := simCfg.Defaults.Skew
	opts := []client.Option{client.WithClock(func() time.Time { return time.Now().Add(skew) })}
	if retry, _ := cmd.Flags().GetInt("retry"); retry > 0 {
		opts = append(opts, client.WithRetry(retry, "http_timeout"))
	}
	connector := client.NewConnectorClient(p.ConnectorURL, p.HTTPPrefix, p.SigningSecret, opts...)

	runner := simulator.NewRunner(simCfg, connector, p.TeamID)
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		runner.Logf = func(string, ...interface{}) {}
	}

	summary, err := runner.Run(cmd.Context())
	if summary != nil {
		if handled, werr := output.Structured(outputFormat(cmd), summary); handled {
			if werr != nil {
				return werr
			}
		} else {
			renderSummary(summary)
		}
	}
	return err
}

func applySimulateFlags(cmd *cobra.Command, d *simulator.DefaultsConfig) {
	flags := cmd.Flags()
	if flags.Changed("count") {
		d.Count, _ = flags.GetInt("count")
	}
	if flags.Changed("interval") {
		d.Interval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("seed") {
		d.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("kinds") {
		d.Kinds, _ = flags.GetStringSlice("kinds")
	}
	if flags.Changed("channels") {
		d.Channels, _ = flags.GetStringSlice("channels")
	}
	if flags.Changed("users") {
		d.Users, _ = flags.GetStringSlice("users")
	}
	if flags.Changed("message-ts") {
		d.MessageTS, _ = flags.GetString("message-ts")
	}
	if flags.Changed("view-id") {
		d.ViewID, _ = flags.GetString("view-id")
	}
	if flags.Changed("skew") {
		d.Skew, _ = flags.GetDuration("skew")
	}
}

func renderSummary(s *simulator.Summary) {
	output.Info("\nSent %d requests", s.Sent)

	table := output.NewTable([]string{"Status", "Count"})
	statuses := make([]int, 0, len(s.ByStatus))
	for code := range s.ByStatus {
		statuses = append(statuses, code)
	}
	sort.Ints(statuses)
	for _, code := range statuses {
		table.AddRow([]string{color.HTTPStatus(code), strconv.Itoa(s.ByStatus[code])})
	}
	if s.Failed > 0 {
		table.AddRow([]string{color.Failure.Sprint("error"), strconv.Itoa(s.Failed)})
	}
	table.Render()

	switch {
	case s.Accepted == s.Sent:
		output.Success("All %d requests accepted", s.Sent)
	case s.Accepted == 0:
		output.Error("No requests accepted")
	default:
		output.Warn("%d of %d requests accepted", s.Accepted, s.Sent)
	}
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().String("scenario", "", "scenario file (default: ./simulate.yaml or ~/.slackctl/simulate.yaml)")
	simulateCmd.Flags().Int("count", 0, "number of requests to send")
	simulateCmd.Flags().Duration("interval", 0, "pause between requests")
	simulateCmd.Flags().Int64("seed", 0, "gofakeit seed for reproducible payloads (0 = random)")
	simulateCmd.Flags().StringSlice("kinds", nil, "payload kinds to mix")
	simulateCmd.Flags().StringSlice("channels", nil, "channel ids to post in")
	simulateCmd.Flags().StringSlice("users", nil, "user ids to act as (default: random)")
	simulateCmd.Flags().String("message-ts", "", "message ts that block_actions click on")
	simulateCmd.Flags().String("view-id", "", "view id for view_submission and view_closed")
	simulateCmd.Flags().Duration("skew", 0, "shift the signing timestamp, e.g. -10m")
	simulateCmd.Flags().Int("retry", 0, "mark requests as Slack redeliveries with this retry number")
	simulateCmd.Flags().Bool("quiet", false, "suppress per-request progress logging")
}
