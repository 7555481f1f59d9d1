package actions

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/relloyd/forklift/config"
	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/helper"
	"github.com/relloyd/forklift/rdbms/shared"
)

// ConnectionConfig names a connection saved in a connections file.
type ConnectionConfig struct {
	ConfigFile  *config.File `errorTxt:"config-file" mandatory:"yes"`
	LogicalName string       `errorTxt:"connection name" mandatory:"yes"`
	Dsn         string       // required to add
	Force       bool
	Output      io.Writer
}

// RunConnectionAdd saves the DSN under the logical name. The connection type comes from the DSN scheme.
// An existing connection is only replaced when cfg.Force is set.
func RunConnectionAdd(cfg *ConnectionConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	// Validate connection name.
	if strings.Contains(cfg.LogicalName, ".") {
		return errs.InvalidArgument("connection name cannot contain period characters '.' as they're used to split <connection>[.<schema>].<table>")
	}
	if strings.TrimSpace(cfg.Dsn) == "" {
		return errs.InvalidArgument("supply the DSN of connection %q", cfg.LogicalName)
	}
	typ, err := config.DsnType(cfg.Dsn)
	if err != nil {
		return errors.Wrap(err, "unable to create connection")
	}
	connection := shared.ConnectionDetails{
		LogicalName: cfg.LogicalName,
		Type:        typ,
		Data:        map[string]string{shared.DefaultConnectionKeyNames.Dsn: cfg.Dsn},
	}
	// Check for an existing saved connection.
	tmpConn := shared.ConnectionDetails{}
	err = cfg.ConfigFile.Get(cfg.LogicalName, &tmpConn)
	if err != nil { // if there is an error finding the connection...
		if _, ok := err.(config.KeyNotFoundError); !ok { // if the error is real...
			return err
		}
	} else if !cfg.Force { // else the connection exists, but we are not allowed to overwrite it...
		return fmt.Errorf("connection %q exists, use force to update the connection or remove it first", cfg.LogicalName)
	}
	// Set config (creates the file if missing).
	if err = cfg.ConfigFile.AddConnection(connection); err != nil {
		return fmt.Errorf("error writing connections config file after adding: %v", err)
	}
	_, _ = fmt.Fprintf(output(cfg.Output), "Connection %q added\n", cfg.LogicalName)
	return nil
}

// RunConnectionRemove deletes the named connection.
func RunConnectionRemove(cfg *ConnectionConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	err := cfg.ConfigFile.Delete(cfg.LogicalName)
	if err != nil {
		return fmt.Errorf("unable to delete connection %q from config: %v", cfg.LogicalName, err)
	}
	_, _ = fmt.Fprintf(output(cfg.Output), "Connection %q removed\n", cfg.LogicalName)
	return nil
}

// RunConnectionList writes each known connection with its password redacted.
func RunConnectionList(w io.Writer, connections config.ConnectionLister) error {
	w = output(w)
	keys, err := connections.GetAllKeys()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(w, "No connections found")
		return nil
	}
	for _, k := range keys {
		d, err := connections.LoadConnection(k)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%v:\n%v\n", k, d)
	}
	return nil
}

type DefaultAddConfig struct {
	ConfigFile *config.File `errorTxt:"config-file" mandatory:"yes"`
	Key        string       `errorTxt:"key" mandatory:"yes"`
	Value      string       `errorTxt:"value" mandatory:"yes"`
	Force      bool
	Output     io.Writer
}

type DefaultRemoveConfig struct {
	ConfigFile *config.File `errorTxt:"config-file" mandatory:"yes"`
	Key        string       `errorTxt:"key" mandatory:"yes"`
	Output     io.Writer
}

// RunDefaultAdd adds key+value to the given config file.
// If cfg.Force is not set then it returns an error when the key exists.
// The key must be a setting and the result must still validate.
func RunDefaultAdd(cfg *DefaultAddConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	if !config.IsSettingKey(cfg.Key) {
		return errs.InvalidArgument("unknown setting %q, use one of: %v", cfg.Key, strings.Join(config.SettingKeys(), ", "))
	}
	var val string
	if err := cfg.ConfigFile.Get(cfg.Key, &val); err == nil && !cfg.Force { // if key exists and we're not allowed to overwrite...
		return fmt.Errorf("key %q exists, use force to update the value or remove it first", cfg.Key)
	} else if err != nil { // else there is an error...
		_, keyNotFoundErr := err.(config.KeyNotFoundError)
		_, fileNotFoundErr := err.(config.FileNotFoundError)
		if !(keyNotFoundErr || fileNotFoundErr) { // if there was an unexpected error...
			return err
		}
	}
	// Check the value decodes into the settings before saving it.
	s := config.DefaultSettings()
	if err := cfg.ConfigFile.GetAll(&s); err != nil {
		return err
	}
	if err := decodeSetting(&s, cfg.Key, cfg.Value); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	err := cfg.ConfigFile.Set(cfg.Key, cfg.Value)
	if err != nil {
		return fmt.Errorf("error writing config file after adding: %v", err)
	}
	_, _ = fmt.Fprintf(output(cfg.Output), "Key %q added to %q\n", cfg.Key, cfg.ConfigFile.FullPath)
	return nil
}

// RunDefaultRemove removes a key from the given config file.
func RunDefaultRemove(cfg *DefaultRemoveConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	err := cfg.ConfigFile.Delete(cfg.Key)
	if err != nil {
		return fmt.Errorf("unable to delete key %q from config: %v", cfg.Key, err)
	}
	_, _ = fmt.Fprintf(output(cfg.Output), "Key %q removed\n", cfg.Key)
	return nil
}

// RunDefaultList writes the effective settings: the defaults overlaid by the file and the environment.
func RunDefaultList(w io.Writer, f *config.File) error {
	s, err := config.LoadSettings(f)
	if err != nil && !errors.Is(err, errs.ErrInvalidArgument) { // if the settings could not be read...
		return err
	}
	m := make(map[string]interface{})
	if err := mapstructure.Decode(s, &m); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(output(w), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KEY\tVALUE")
	for _, k := range config.SettingKeys() {
		v := m[k]
		if k == "apiKey" && v != "" { // secret
			v = "xxxxx"
		}
		_, _ = fmt.Fprintf(tw, "%v\t%v\n", k, v)
	}
	return tw.Flush()
}

func decodeSetting(s *config.Settings, key string, value string) error {
	if err := mapstructure.WeakDecode(map[string]interface{}{key: value}, s); err != nil {
		return errs.InvalidArgument("bad value %q for %v: %v", value, key, err)
	}
	return nil
}

func output(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
