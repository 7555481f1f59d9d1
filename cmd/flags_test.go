package cmd

import (
	"testing"

	"github.com/relloyd/forklift/config"
	"github.com/spf13/cobra"
)

func TestGetCliFlag(t *testing.T) {
	defer func() { twelveFactorMode = false }()
	fnGetConfig := func(key string, out interface{}) error {
		return config.KeyNotFoundError{}
	}
	flagName := "mock"
	mockEnvVar := flagNameToEnvVar(flagName)
	expected := "envTest"
	d := "myDefault"

	t.Log("Test 1 - default value applied to mock CLI flag")
	twelveFactorMode = false
	got := switches.getCliFlag(flagName, d, fnGetConfig)
	if got.val != d { // if no default was applied...
		t.Fatalf("test 1 failed: expected default value %v to be applied to mock CLI flag; got %v", d, got.val)
	}

	t.Log("Test 2 - the value is read from config by its camel case key")
	var gotKey string
	fnConfigValue := func(key string, out interface{}) error {
		gotKey = key
		*out.(*string) = "fromConfig"
		return nil
	}
	got = switches.getCliFlag("log-level", d, fnConfigValue)
	if got.val != "fromConfig" || gotKey != "logLevel" {
		t.Fatalf("test 2 failed: expected the config value of key logLevel; got %v from key %v", got.val, gotKey)
	}

	t.Log("Test 3 - flag value unset in the environment uses the default")
	twelveFactorMode = true // enable twelveFactorMode so that env variables are read.
	got = switches.getCliFlag(flagName, d, fnGetConfig)
	if got.val != d {
		t.Fatalf("test 3 failed: expected default value (%v) to be applied to mock CLI flag fetched via environment variable (%v)", d, mockEnvVar)
	}

	t.Log("Test 4 - flag value is fetched from the environment")
	t.Setenv(mockEnvVar, expected)
	got = switches.getCliFlag(flagName, d, fnGetConfig)
	if got.val != expected {
		t.Fatalf("test 4 failed: expected value (%v) to be applied to mock CLI flag (%v) fetched from environment variable (%v); got: %v", expected, flagName, mockEnvVar, got.val)
	}

	t.Log("Test 5 - unregistered flags panic")
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("test 5 failed: expected a panic for an unregistered flag")
		}
	}()
	switches.getCliFlag("junk", d, fnGetConfig)
}

func TestFlagNames(t *testing.T) {
	cases := map[string][2]string{
		"log-level":       {"FL_LOG_LEVEL", "logLevel"},
		"connection-name": {"FL_CONNECTION_NAME", "connectionName"},
		"port":            {"FL_PORT", "port"},
	}
	for name, expected := range cases {
		if got := flagNameToEnvVar(name); got != expected[0] {
			t.Fatalf("expected env var %v for %v; got %v", expected[0], name, got)
		}
		if got := flagNameToConfigKey(name); got != expected[1] {
			t.Fatalf("expected config key %v for %v; got %v", expected[1], name, got)
		}
	}
}

func TestAddFlag(t *testing.T) {
	defer func() { twelveFactorMode = false }()

	t.Log("Test 1 - flags are added to the command with defaults")
	twelveFactorMode = false
	c := &cobra.Command{Use: "test"}
	var s string
	var n int
	var b bool
	var a []string
	switches.addFlag(c, &s, "output", "json", false, "")
	switches.addFlag(c, &b, "schedule", "true", false, "")
	switches.addFlag(c, &a, "param", "", false, "")
	switches.addFlag(&cobra.Command{Use: "other"}, &n, "port", "9090", false, "")
	if s != "json" || n != 9090 || !b {
		t.Fatalf("test 1 failed: unexpected defaults %v %v %v", s, n, b)
	}
	if err := c.Flags().Parse([]string{"--output", "yaml", "-p", "a=1", "-p", "b=2"}); err != nil {
		t.Fatal(err)
	}
	if s != "yaml" || len(a) != 2 || a[1] != "b=2" {
		t.Fatalf("test 1 failed: unexpected values %v %v", s, a)
	}

	t.Log("Test 2 - twelve-factor mode reads the environment without adding flags")
	twelveFactorMode = true
	t.Setenv("FL_PORT", "7070")
	t.Setenv("FL_SCHEDULE", "TRUE")
	c = &cobra.Command{Use: "test"}
	n, b = 0, false
	switches.addFlag(c, &n, "port", "8080", true, "")
	switches.addFlag(c, &b, "schedule", "false", false, "")
	if n != 7070 || !b {
		t.Fatalf("test 2 failed: unexpected values %v %v", n, b)
	}
	if c.Flags().Lookup("port") != nil {
		t.Fatal("test 2 failed: expected no flags in twelve-factor mode")
	}
}
