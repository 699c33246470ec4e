package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the market scanner until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var checkCmd = &cobra.Command{
	Use:   "check CODE...",
	Short: "Evaluate the enabled rules once for the given codes without pushing",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), args, cmd.OutOrStdout())
	},
}
