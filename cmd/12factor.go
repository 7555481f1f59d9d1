package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/relloyd/forklift/config"
	c "github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/helper"
	"github.com/relloyd/forklift/logger"
)

// init will be called first due to the lexical order in which these functions are executed.
// This ensures the value of twelveFactorMode is set such that other init() functions that configure
// Cobra can do the job of processing all environment variables that would contain equivalent of the CLI flag
// structures used by forklift's actions.
func init() {
	setupTwelveFactorMode()
}

// setupTwelveFactorMode will enable or disable 12 factor mode based on environment variable.
func setupTwelveFactorMode() {
	mode := os.Getenv(envVarTwelveFactorMode)
	if mode != "" { // if variable for 12factor mode is set and we should read env vars to determine actions...
		twelveFactorMode = true
		if strings.ToLower(mode) == "lambda" {
			lambdaMode = true
		}
	} else { // else 12factor mode should be off...
		twelveFactorMode = false // explicitly turn off this mode since tests may have turned it on while others require it off.
		lambdaMode = false
	}
}

const (
	envVarTwelveFactorMode = c.EnvVarPrefix + "_" + "12FACTOR_MODE"
	envVarCommand          = c.EnvVarPrefix + "_" + "COMMAND"  // run|serve
	envVarPipeline         = c.EnvVarPrefix + "_" + "PIPELINE" // required by run
	envVarParams           = c.EnvVarPrefix + "_" + "PARAMS"   // <key>=<value>[,<key>=<value>...]
	envVarAPIKey           = c.EnvVarPrefix + "_" + "API_KEY"
	envVarLogLevel         = c.EnvVarPrefix + "_" + "LOG_LEVEL"
	envVarStackDump        = c.EnvVarPrefix + "_" + "STACK_DUMP"
)

var (
	twelveFactorMode bool // true if os env var envVarTwelveFactorMode is set
	lambdaMode       bool // true if os env var envVarTwelveFactorMode is "lambda"
	twelveFactorVars = map[string]string{
		envVarCommand:   "",
		envVarPipeline:  "",
		envVarParams:    "",
		envVarAPIKey:    "",
		envVarLogLevel:  "",
		envVarStackDump: "",
	}
	twelveFactorVarsSensitive = map[string]string{ // used to flag some of the above variables as being sensitive.
		envVarAPIKey: "",
	}
)

type twelveFactorAction struct {
	setupFunc  func(vars map[string]string) error
	runnerFunc func() error
}

var twelveFactorActions = map[string]twelveFactorAction{
	"run": {
		setupFunc: func(vars map[string]string) error {
			if vars[envVarPipeline] == "" {
				return fmt.Errorf("%v is required by command run", envVarPipeline)
			}
			runCfg.Pipeline = vars[envVarPipeline]
			runParams = helper.CsvToStringSliceTrimSpaces(vars[envVarParams])
			return nil
		},
		runnerFunc: runPipeline,
	},
	"serve": {
		setupFunc:  func(vars map[string]string) error { return nil },
		runnerFunc: runServe,
	},
}

// getSettings loads the settings from the main config file, or only the environment in twelveFactorMode.
func getSettings() (config.Settings, error) {
	if twelveFactorMode {
		return config.LoadSettings(nil)
	}
	return config.LoadSettings(config.Main)
}

// getConnectionLister returns the saved connections, or those named by s in twelveFactorMode where
// each DSN is read from FL_<CONNECTION>_DSN.
func getConnectionLister(s config.Settings) config.ConnectionLister {
	if twelveFactorMode {
		return &config.EnvConnections{Names: append([]string{s.WarehouseConnection}, s.Sources()...)}
	}
	return config.Connections
}

// getConnectionsFile returns the connections file that config commands change.
func getConnectionsFile() (*config.File, error) {
	if twelveFactorMode {
		return nil, fmt.Errorf("connections cannot be configured when %v is set (supply them using %v instead)",
			envVarTwelveFactorMode, helper.GetDsnEnvVarName("<connection-name>"))
	}
	return config.Connections, nil
}

func execute12FactorMode(acts map[string]twelveFactorAction) (err error) {
	logLevel := helper.ReadValueFromEnvWithDefault(envVarLogLevel, "warn") // fetch logLevel from env as this is not a persistent flag.
	log := logger.NewLogger(c.AppName, logLevel, stackDumpOnPanic)
	log.Info("forklift is running in 12 Factor mode...")
	// Save values for the variables.
	keys := make([]string, 0, len(twelveFactorVars))
	for k := range twelveFactorVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys { // for each env variable that we need...
		// Save it and log it.
		twelveFactorVars[k] = os.Getenv(k)
		if _, sensitive := twelveFactorVarsSensitive[k]; !sensitive { // if the env variable does not contain sensitive values...
			log.Debug(k, "=", twelveFactorVars[k])
		} else { // else output obfuscated value...
			log.Debug(k, "=", "<obfuscated>")
		}
	}
	stackDumpOnPanic = stackDumpOnPanic || twelveFactorVars[envVarStackDump] != ""
	// Use the command to fetch the appropriate action.
	a, ok := acts[twelveFactorVars[envVarCommand]]
	if !ok {
		err = fmt.Errorf("invalid command %q, set %v to one of: %v", twelveFactorVars[envVarCommand], envVarCommand, actionNames(acts))
		log.Error(err.Error())
		return
	}
	if err = a.setupFunc(twelveFactorVars); err != nil {
		log.Error(err.Error())
		return
	}
	// Run the action.
	err = a.runnerFunc()
	if err != nil {
		log.Error("Error: ", err)
	}
	return err
}

func actionNames(acts map[string]twelveFactorAction) string {
	names := make([]string, 0, len(acts))
	for k := range acts {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
