package cmd

import (
	"github.com/relloyd/forklift/actions"
	"github.com/relloyd/forklift/pipelines"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the pipelines with their schedules and default params",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := pipelines.NewRegistry(pipelines.All()...)
		if err != nil {
			return err
		}
		return actions.OutputPipelines(cmd.OutOrStdout(), reg)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.SilenceUsage = true
}
