package config

import (
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/helper"
)

// Settings are the keys of the main config file. Each may be overridden by FL_<KEY> in snake case,
// e.g. workerPoolSize => FL_WORKER_POOL_SIZE.
type Settings struct {
	WorkerPoolSize      int    `mapstructure:"workerPoolSize" yaml:"workerPoolSize"`
	MaxRunMinutes       int    `mapstructure:"maxRunMinutes" yaml:"maxRunMinutes"`
	RetryCount          int    `mapstructure:"retryCount" yaml:"retryCount"`
	RetryDelaySeconds   int    `mapstructure:"retryDelaySeconds" yaml:"retryDelaySeconds"`
	CallTimeoutSeconds  int    `mapstructure:"callTimeoutSeconds" yaml:"callTimeoutSeconds"`
	StatsDumpSeconds    int    `mapstructure:"statsDumpSeconds" yaml:"statsDumpSeconds"`
	RegistryDsn         string `mapstructure:"registryDsn" yaml:"registryDsn"` // empty keeps runs in memory
	WarehouseConnection string `mapstructure:"warehouseConnection" yaml:"warehouseConnection" errorTxt:"warehouse connection name" mandatory:"yes"`
	SourceConnections   string `mapstructure:"sourceConnections" yaml:"sourceConnections"` // comma separated connection names
	PartitionLock       bool   `mapstructure:"partitionLock" yaml:"partitionLock"`
	RedisAddr           string `mapstructure:"redisAddr" yaml:"redisAddr"` // shares the partition locks between processes
	LogLevel            string `mapstructure:"logLevel" yaml:"logLevel"`
	APIKey              string `mapstructure:"apiKey" yaml:"apiKey"`
	APIBaseURL          string `mapstructure:"apiBaseUrl" yaml:"apiBaseUrl"`
	S3Bucket            string `mapstructure:"s3Bucket" yaml:"s3Bucket"`
	S3Region            string `mapstructure:"s3Region" yaml:"s3Region"`
	S3Prefix            string `mapstructure:"s3Prefix" yaml:"s3Prefix"`
	ScriptDir           string `mapstructure:"scriptDir" yaml:"scriptDir"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		WorkerPoolSize:      constants.DefaultWorkerPoolSize,
		MaxRunMinutes:       constants.MaxRunMinutes,
		RetryCount:          constants.DefaultRetryCount,
		RetryDelaySeconds:   constants.DefaultRetryDelaySeconds,
		CallTimeoutSeconds:  constants.DefaultCallTimeoutSecs,
		StatsDumpSeconds:    constants.StatsCaptureFrequencySeconds,
		WarehouseConnection: constants.DefaultWarehouseName,
		LogLevel:            "info",
	}
}

// LoadSettings overlays the defaults with the keys of f, when f is not nil, and then the environment.
func LoadSettings(f *File) (Settings, error) {
	s := DefaultSettings()
	if f != nil {
		if err := f.GetAll(&s); err != nil {
			return s, err
		}
	}
	if err := mapstructure.WeakDecode(envOverrides(), &s); err != nil {
		return s, errs.InvalidArgument("bad setting in the environment: %v", err)
	}
	return s, s.Validate()
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	if err := helper.ValidateStructIsPopulated(s); err != nil {
		return errs.InvalidArgument("%v", err)
	}
	if s.WorkerPoolSize <= 0 || s.MaxRunMinutes <= 0 {
		return errs.InvalidArgument("workerPoolSize and maxRunMinutes must be positive")
	}
	if s.RetryCount < 0 || s.RetryDelaySeconds < 0 || s.CallTimeoutSeconds < 0 {
		return errs.InvalidArgument("retry settings cannot be negative")
	}
	return nil
}

// Sources returns the source connection names.
func (s Settings) Sources() []string {
	return helper.CsvToStringSliceTrimSpaces(s.SourceConnections)
}

var reCamel = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// SettingEnvVarName returns the environment variable overriding key, e.g. apiBaseUrl => FL_API_BASE_URL.
func SettingEnvVarName(key string) string {
	return helper.EnvVarName(reCamel.ReplaceAllString(key, "${1}_${2}"))
}

// SettingKeys returns the keys of the main config file in declaration order.
func SettingKeys() []string {
	t := reflect.TypeOf(Settings{})
	retval := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		retval = append(retval, t.Field(i).Tag.Get("mapstructure"))
	}
	return retval
}

// IsSettingKey reports whether key is one of SettingKeys.
func IsSettingKey(key string) bool {
	for _, k := range SettingKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// envOverrides returns the settings found in the environment keyed by their config file key.
func envOverrides() map[string]interface{} {
	retval := make(map[string]interface{})
	for _, key := range SettingKeys() {
		if v, ok := os.LookupEnv(SettingEnvVarName(key)); ok && strings.TrimSpace(v) != "" {
			retval[key] = v
		}
	}
	return retval
}
