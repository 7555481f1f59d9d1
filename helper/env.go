package helper

import (
	"fmt"
	"os"
	"strings"

	"github.com/relloyd/forklift/constants"
)

// GetEnvVar fetches OS environment variable.
// If the variable is not set it returns empty string.
// It also returns an error if there is a missing value AND mandatory == true.
func GetEnvVar(k string, mandatory bool) (string, error) {
	if value := os.Getenv(k); value != "" {
		return value, nil
	} else if mandatory {
		return "", fmt.Errorf("environment variable %v is not set", k)
	}
	return "", nil
}

// ReadValueFromEnv will read the env var name and populate the supplied val.
// If the env var is not set then return an error and leave val untouched.
func ReadValueFromEnv(name string, val *string) error {
	v := os.Getenv(name)
	if v != "" { // if the environment variable was set...
		*val = v
		return nil
	}
	return fmt.Errorf("value for environment variable %v not found", name)
}

// ReadValueFromEnvWithDefault will read the value of name from the environment into v.
// If it's not set then it will apply the supplied defaultValue and return v.
func ReadValueFromEnvWithDefault(name string, defaultValue string) (v string) {
	if err := ReadValueFromEnv(name, &v); err != nil {
		v = defaultValue
	}
	return
}

// EnvVarName converts name into an environment variable using EnvVarPrefix and the name converted to upper
// case with dashes converted to underscores, e.g. worker-pool-size => FL_WORKER_POOL_SIZE.
func EnvVarName(name string) string {
	n := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	return constants.EnvVarPrefix + "_" + n
}

// GetDsnEnvVarName returns the variable that can hold the DSN of connectionName, e.g. FL_WAREHOUSE_DSN.
func GetDsnEnvVarName(connectionName string) string {
	n := strings.TrimSpace(strings.ToUpper(connectionName))
	return fmt.Sprintf("%v_%v_DSN", constants.EnvVarPrefix, n)
}
