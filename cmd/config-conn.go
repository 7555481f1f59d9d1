package cmd

import (
	"fmt"

	"github.com/relloyd/forklift/actions"
	"github.com/relloyd/forklift/config"
	"github.com/spf13/cobra"
)

var connAddCfg = actions.ConnectionConfig{}
var connRemoveCfg = actions.ConnectionConfig{}

var configConnCmd = &cobra.Command{
	Use:   "connections",
	Short: "Configure connection details",
	Long: fmt.Sprintf(`Configure the connections used by pipelines where:

- Connections are stored in file %q`, config.Connections.FullPath),
}

var configConnAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a connection",
	Long: `Add a logical connection for use by the warehouse, sources or the run registry.
The connection type is taken from the DSN scheme.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if connAddCfg.ConfigFile, err = getConnectionsFile(); err != nil {
			return err
		}
		connAddCfg.Output = cmd.OutOrStdout()
		return actions.RunConnectionAdd(&connAddCfg)
	},
}

var configConnListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all connections",
	Long: fmt.Sprintf(`List connections stored in config store %q 
by printing them all to STDOUT with passwords hidden`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := getConnectionsFile()
		if err != nil {
			return err
		}
		return actions.RunConnectionList(cmd.OutOrStdout(), f)
	},
}

var configConnRemoveCmd = &cobra.Command{
	Use:     "remove",
	Aliases: []string{"rm", "del", "delete"},
	Short:   "Remove a connection",
	Long:    fmt.Sprintf("Remove a connection from config file %q", config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if connRemoveCfg.ConfigFile, err = getConnectionsFile(); err != nil {
			return err
		}
		connRemoveCfg.Output = cmd.OutOrStdout()
		return actions.RunConnectionRemove(&connRemoveCfg)
	},
}

func init() {
	configCmd.AddCommand(configConnCmd)
	configConnCmd.AddCommand(configConnAddCmd, configConnListCmd, configConnRemoveCmd)
	// Add.
	configConnAddCmd.Flags().SortFlags = false
	switches.addFlag(configConnAddCmd, &connAddCfg.LogicalName, "connection-name", "", true, "")
	switches.addFlag(configConnAddCmd, &connAddCfg.Dsn, "dsn", "", true, "")
	switches.addFlag(configConnAddCmd, &connAddCfg.Force, "force", "false", false, "")
	configConnAddCmd.SilenceUsage = true
	// Remove.
	switches.addFlag(configConnRemoveCmd, &connRemoveCfg.LogicalName, "connection-name", "", true, " to remove")
	configConnRemoveCmd.SilenceUsage = true
}
