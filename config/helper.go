package config

import (
	"fmt"
	"os"
	"path"

	"github.com/mitchellh/go-homedir"
	"github.com/relloyd/forklift/helper"
)

// envVarHome overrides the config directory.
var envVarHome = helper.EnvVarName("home")

// mustGetConfigHomeDir returns the full path to the directory that stores all config files.
func mustGetConfigHomeDir() string {
	if forkliftHomeDir == "" {
		if dir := os.Getenv(envVarHome); dir != "" {
			forkliftHomeDir = dir
			return forkliftHomeDir
		}
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		forkliftHomeDir = path.Join(home, MainDir)
	}
	return forkliftHomeDir
}

// makeDir will make the given directory if it does not already exist.
func makeDir(dir string) error {
	_, err := os.Stat(dir)
	if os.IsNotExist(err) { // if it doesn't exist...
		if err = os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("error creating directory %v: %w", dir, err)
		}
	} else if err != nil {
		return err
	}
	return nil
}
