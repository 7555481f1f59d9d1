package cmd

import (
	"fmt"
	"strings"

	"github.com/relloyd/forklift/actions"
	"github.com/relloyd/forklift/config"
	"github.com/spf13/cobra"
)

var defaultAddCfg = actions.DefaultAddConfig{}
var defaultRemoveCfg = actions.DefaultRemoveConfig{}

var defaultCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Configure default settings",
	Long: fmt.Sprintf(`Configure default settings, where:

- Settings are stored in config file %q
- Valid keys are: %v`, config.Main.FullPath, strings.Join(config.SettingKeys(), ", ")),
}

var defaultAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or set a default setting",
	Long:  fmt.Sprintf("Add a setting to config file %q", config.Main.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaultAddCfg.ConfigFile = config.Main
		defaultAddCfg.Output = cmd.OutOrStdout()
		return actions.RunDefaultAdd(&defaultAddCfg)
	},
}

var configDefaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the effective settings",
	Long: fmt.Sprintf(`List the settings found in config file %q
overlaid on the defaults and overridden by the environment`,
		config.Main.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		return actions.RunDefaultList(cmd.OutOrStdout(), config.Main)
	},
}

var defaultRemoveCmd = &cobra.Command{
	Use:     "remove",
	Aliases: []string{"rm", "del", "delete"},
	Short:   "Remove a default setting",
	Long:    fmt.Sprintf("Remove a setting from config file %q", config.Main.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaultRemoveCfg.ConfigFile = config.Main
		defaultRemoveCfg.Output = cmd.OutOrStdout()
		return actions.RunDefaultRemove(&defaultRemoveCfg)
	},
}

func init() {
	configCmd.AddCommand(defaultCmd)
	defaultCmd.AddCommand(defaultAddCmd, configDefaultListCmd, defaultRemoveCmd)
	// Add.
	defaultAddCmd.Flags().SortFlags = false
	switches.addFlag(defaultAddCmd, &defaultAddCfg.Key, "key", "", true, "")
	switches.addFlag(defaultAddCmd, &defaultAddCfg.Value, "value", "", true, "")
	switches.addFlag(defaultAddCmd, &defaultAddCfg.Force, "force", "false", false, "")
	defaultAddCmd.SilenceUsage = true
	// Remove.
	switches.addFlag(defaultRemoveCmd, &defaultRemoveCfg.Key, "key", "", true, " to remove")
	defaultRemoveCmd.SilenceUsage = true
}
