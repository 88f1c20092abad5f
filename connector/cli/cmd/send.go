package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/slack-connector/common/messaging"
	natsclient "github.com/telhawk-systems/slack-connector/common/messaging/nats"
	"github.com/telhawk-systems/slack-connector/connector/cli/pkg/output"
	"github.com/telhawk-systems/slack-connector/connector/internal/sender"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Post artifacts through the connector's send API",
	Long: `Call the connector's NATS request/reply send API as a subscriber block
would. The connector posts to Slack and records the new message ts or view
id against --block-id, so later interactions route back to that block.`,
}

var sendMessageCmd = &cobra.Command{
	Use:   "message",
	Short: "Post a message with blocks",
	Example: `  slackctl send message --channel C0123 --block-id B-approvals --text "Deploy?" --blocks blocks.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		call := sender.PostMessageCall{}
		call.Channel, _ = cmd.Flags().GetString("channel")
		call.Text, _ = cmd.Flags().GetString("text")
		call.ThreadTS, _ = cmd.Flags().GetString("thread-ts")
		call.SubscriberBlockID, _ = cmd.Flags().GetString("block-id")

		if path, _ := cmd.Flags().GetString("blocks"); path != "" {
			data, err := readInput(cmd, path)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &call.Blocks); err != nil {
				return fmt.Errorf("failed to parse blocks: %w", err)
			}
		}

		reply, err := callSendAPI(cmd, messaging.SubjectAPIPostMessage, call)
		if err != nil {
			return err
		}
		if handled, err := output.Structured(outputFormat(cmd), reply); handled {
			return err
		}
		output.Success("Posted %s in %s for %s", reply.TS, reply.Channel, call.SubscriberBlockID)
		return nil
	},
}

var sendModalCmd = &cobra.Command{
	Use:   "modal",
	Short: "Open a modal from a trigger id",
	RunE: func(cmd *cobra.Command, args []string) error {
		call := sender.OpenModalCall{}
		call.TriggerID, _ = cmd.Flags().GetString("trigger-id")
		call.SubscriberBlockID, _ = cmd.Flags().GetString("block-id")

		path, _ := cmd.Flags().GetString("view")
		data, err := readInput(cmd, path)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &call.View); err != nil {
			return fmt.Errorf("failed to parse view: %w", err)
		}
		if call.View.Type == "" {
			call.View.Type = slack.VTModal
		}

		reply, err := callSendAPI(cmd, messaging.SubjectAPIOpenModal, call)
		if err != nil {
			return err
		}
		if handled, err := output.Structured(outputFormat(cmd), reply); handled {
			return err
		}
		output.Success("Opened view %s for %s", reply.ViewID, call.SubscriberBlockID)
		return nil
	},
}

func callSendAPI(cmd *cobra.Command, subject string, req any) (sender.Reply, error) {
	p, err := activeProfile(cmd)
	if err != nil {
		return sender.Reply{}, err
	}
	nc, err := natsclient.NewClient(natsConfig(p.NATSURL, cliLogger()))
	if err != nil {
		return sender.Reply{}, err
	}
	defer nc.Close()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	return sender.Call(cmd.Context(), nc, subject, req, timeout)
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.AddCommand(sendMessageCmd)
	sendCmd.AddCommand(sendModalCmd)

	sendCmd.PersistentFlags().String("block-id", "", "subscriber block that owns the artifact (required)")
	sendCmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
	_ = sendCmd.MarkPersistentFlagRequired("block-id")

	sendMessageCmd.Flags().String("channel", "", "channel id (required)")
	sendMessageCmd.Flags().String("text", "", "fallback text")
	sendMessageCmd.Flags().String("thread-ts", "", "reply in this thread")
	sendMessageCmd.Flags().String("blocks", "", "JSON file with a blocks array (\"-\" for stdin)")
	_ = sendMessageCmd.MarkFlagRequired("channel")

	sendModalCmd.Flags().String("trigger-id", "", "trigger id from an interaction (required)")
	sendModalCmd.Flags().String("view", "", "JSON file with the modal view (required)")
	_ = sendModalCmd.MarkFlagRequired("trigger-id")
	_ = sendModalCmd.MarkFlagRequired("view")
}
