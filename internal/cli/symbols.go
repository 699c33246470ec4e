package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the venue-qualified symbol for every code in the universe file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Resolve(cmd.Context(), cmd.OutOrStdout())
	},
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Manage the universe file",
}

var symbolsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the universe file from the TWSE/TPEx ISIN listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := getApp().RefreshSymbols(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d codes written (TWSE %d, TPEx %d, source %s)\n", len(res.Codes), res.TWSE, res.TPEX, res.Source)
		return nil
	},
}

func init() {
	symbolsCmd.AddCommand(symbolsRefreshCmd)
}
