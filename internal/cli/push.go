package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var testPushCmd = &cobra.Command{
	Use:   "test-push [TEXT]",
	Short: "Send one test message through the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().TestPush(cmd.Context(), strings.Join(args, " "))
	},
}

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Serve the LINE webhook callback, health and metrics endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ServeWebhook(cmd.Context())
	},
}
