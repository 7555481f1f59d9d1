package cmd

import (
	"os"

	"github.com/relloyd/forklift/actions"
	"github.com/relloyd/forklift/helper"
	"github.com/spf13/cobra"
)

var runCfg = actions.RunConfig{}
var runParams []string

var runCmd = &cobra.Command{
	Use:   "run [<pipeline>]",
	Short: "Run a pipeline to completion",
	Long: `Run a pipeline once and print its result as JSON.
The pipeline name may come from the run file instead of the argument.
Parameters are applied in order: the pipeline defaults, the run file and then --param flags.
CTRL-C stops the run after the current tasks give up.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			runCfg.Pipeline = args[0]
		}
		return runPipeline()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().SortFlags = false
	switches.addFlag(runCmd, &runParams, "param", "", false, "")
	switches.addFlag(runCmd, &runCfg.RunFile, "file", "", false, "")
	switches.addFlag(runCmd, &runCfg.Now, "now", "", false, "")
	switches.addFlag(runCmd, &runCfg.LogLevel, "log-level", "", false, " (default: logLevel of the settings)")
	runCmd.SilenceUsage = true
}

func runPipeline() error {
	params, err := helper.KeyValuePairsToMap(runParams)
	if err != nil {
		return err
	}
	runCfg.Params = params
	if runCfg.Settings, err = getSettings(); err != nil {
		return err
	}
	runCfg.Connections = getConnectionLister(runCfg.Settings)
	runCfg.StackDumpOnPanic = stackDumpOnPanic
	runCfg.Output = os.Stdout
	return actions.RunPipeline(&runCfg)
}
