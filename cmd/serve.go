package cmd

import (
	"net"

	"github.com/relloyd/forklift/actions"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP status API and optionally the scheduler",
	Long: `Start a web service that lists pipelines and runs, launches runs described in JSON
and exposes Prometheus metrics. Use --schedule to launch pipelines on their cron schedules.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var serveConfig = actions.WebServerConfig{
	LogLevel: "info",
	Scheme:   "http",
	Addr:     net.IP{0, 0, 0, 0},
	Port:     8080,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().SortFlags = false
	serveCmd.Flags().IPVarP(&serveConfig.Addr, "address", "a", net.IP{0, 0, 0, 0}, "Address to listen on")
	switches.addFlag(serveCmd, &serveConfig.Port, "port", "8080", false, "")
	switches.addFlag(serveCmd, &serveConfig.Schedule, "schedule", "false", false, "")
	switches.addFlag(serveCmd, &serveConfig.LogLevel, "log-level", "info", false, "")
	serveCmd.SilenceUsage = true
}

func runServe() error {
	s, err := getSettings()
	if err != nil {
		return err
	}
	serveConfig.Settings = s
	serveConfig.Connections = getConnectionLister(s)
	serveConfig.StackDumpOnPanic = stackDumpOnPanic
	return actions.RunWebServer(&serveConfig)
}
