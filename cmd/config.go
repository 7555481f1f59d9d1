package cmd

import (
	"fmt"

	"github.com/relloyd/forklift/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure connections and default settings",
	Long: fmt.Sprintf(`Configure connections & settings where:

- Connections are stored in file %q
- Settings are stored in file %q

Any setting may be overridden by an environment variable named FL_<SETTING>
in upper snake case, e.g. workerPoolSize => FL_WORKER_POOL_SIZE.
`, config.Connections.FullPath, config.Main.FullPath),
}

func init() {
	rootCmd.AddCommand(configCmd)
}
