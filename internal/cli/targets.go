package cli

import (
	"github.com/spf13/cobra"
)

var targetsCmd = &cobra.Command{
	Use:   "targets BASE",
	Short: "List currencies the provider quotes against BASE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Targets(cmd.Context(), cmd.OutOrStdout(), args[0], credential)
	},
}
