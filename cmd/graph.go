package cmd

import (
	"github.com/relloyd/forklift/actions"
	"github.com/relloyd/forklift/pipelines"
	"github.com/spf13/cobra"
)

var graphOutput string

var graphCmd = &cobra.Command{
	Use:   "graph <pipeline>",
	Short: "Print the task graph of a pipeline",
	Long: `Print the nodes, edges and gates of a pipeline as YAML or JSON.
No connections are opened.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := pipelines.NewRegistry(pipelines.All()...)
		if err != nil {
			return err
		}
		return actions.OutputGraph(cmd.OutOrStdout(), reg, args[0], graphOutput)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	switches.addFlag(graphCmd, &graphOutput, "output", "yaml", false, "")
	graphCmd.SilenceUsage = true
}
