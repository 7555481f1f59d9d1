// Package config reads and writes the YAML files holding forklift's settings and named connections.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/relloyd/forklift/rdbms/shared"
	"gopkg.in/yaml.v2"
)

var forkliftHomeDir string
var Main *File
var Connections *File

func init() {
	Main = NewConfigFileWithDir(mustGetConfigHomeDir(), MainFileFullName)
	Connections = NewConfigFileWithDir(mustGetConfigHomeDir(), ConnectionsConfigFileFullName)
}

const (
	MainDir                         = ".forklift"
	MainFileNamePrefix              = "config"
	MainFileNameExt                 = "yaml"
	MainFileFullName                = MainFileNamePrefix + "." + MainFileNameExt
	ConnectionsConfigFileNamePrefix = "connections"
	ConnectionsConfigFileNameExt    = "yaml"
	ConnectionsConfigFileFullName   = ConnectionsConfigFileNamePrefix + "." + ConnectionsConfigFileNameExt
)

// FileNotFoundError denotes failing to find configuration file.
type FileNotFoundError struct {
	name string
}

// Error returns the formatted configuration error.
func (f FileNotFoundError) Error() string {
	return fmt.Sprintf("config file %q not found", f.name)
}

type KeyNotFoundError struct {
	configFile string
	key        string
	err        error
}

func (k KeyNotFoundError) Error() string {
	if k.err != nil {
		return fmt.Sprintf("key %q not found in config file %q: %v", k.key, k.configFile, k.err)
	}
	return fmt.Sprintf("key %q not found in config file %q", k.key, k.configFile)
}

// File is a YAML map of keys held in a config directory.
type File struct {
	Dirname      string
	FileName     string
	FilePrefix   string
	FileExt      string
	FullPath     string
	data         map[string]interface{}
	dataIsLoaded bool
	mu           sync.Mutex
}

func NewConfigFileWithDir(dirName string, filename string) *File {
	c := &File{Dirname: dirName, FileName: filename}
	c.FullPath = path.Join(dirName, filename)
	c.FileExt = strings.TrimLeft(path.Ext(filename), ".")
	c.FilePrefix = strings.TrimSuffix(c.FileName, "."+c.FileExt)
	c.data = make(map[string]interface{})
	return c
}

// Get will fetch the key from the config File into variable, out.
// Supported out types are anything mapstructure can decode into, e.g. string, ConnectionDetails.
// Return an error if we can't find the key.
func (c *File) Get(key string, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr {
		return errors.New("out must be a pointer")
	}
	if err := c.load(); err != nil {
		return err
	}
	c.mu.Lock()
	d, ok := c.data[key]
	c.mu.Unlock()
	if !ok { // if the key was not found...
		switch val.Elem().Interface().(type) {
		case string:
			return KeyNotFoundError{c.FullPath, key, fmt.Errorf("missing string value for key")}
		case shared.ConnectionDetails:
			return KeyNotFoundError{c.FullPath, key, fmt.Errorf("missing connection")}
		}
		return KeyNotFoundError{c.FullPath, key, nil}
	}
	if err := mapstructure.WeakDecode(d, out); err != nil {
		return fmt.Errorf("error decoding key %v of config file %v: %w", key, c.FullPath, err)
	}
	return nil
}

// GetAll decodes the whole file into out.
func (c *File) GetAll(out interface{}) error {
	if err := c.load(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := mapstructure.WeakDecode(c.data, out); err != nil {
		return fmt.Errorf("error decoding config file %v: %w", c.FullPath, err)
	}
	return nil
}

func (c *File) Set(key string, val interface{}) error {
	if err := c.load(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = val
	return c.save()
}

func (c *File) Delete(key string) error {
	if err := c.load(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, keyExists := c.data[key]; !keyExists {
		return KeyNotFoundError{c.FullPath, key, nil}
	}
	delete(c.data, key)
	return c.save()
}

// GetAllKeys returns the keys of the file in order. A missing file has no keys.
func (c *File) GetAllKeys() ([]string, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	retval := make([]string, 0, len(c.data))
	for k := range c.data {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval, nil
}

// load reads the file once. A missing file leaves the data empty.
func (c *File) load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dataIsLoaded {
		return nil
	}
	b, err := os.ReadFile(c.FullPath)
	if os.IsNotExist(err) { // if the file is missing it is created by the first Set...
		c.dataIsLoaded = true
		return nil
	}
	if err != nil {
		return err
	}
	data := make(map[string]interface{})
	if err = yaml.Unmarshal(b, &data); err != nil {
		return fmt.Errorf("error reading config file %v: %w", c.FullPath, err)
	}
	c.data = data
	c.dataIsLoaded = true
	return nil
}

// save writes the data readable by the owner only.
func (c *File) save() error {
	b, err := yaml.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("error marshalling data of config file %v: %w", c.FullPath, err)
	}
	if err = makeDir(c.Dirname); err != nil {
		return err
	}
	return os.WriteFile(c.FullPath, b, 0600)
}
