package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relloyd/forklift/helper"
	"github.com/relloyd/forklift/rdbms/shared"
	"github.com/xo/dburl"
)

// ConnectionLoader returns named connections.
type ConnectionLoader interface {
	LoadConnection(connectionName string) (shared.ConnectionDetails, error)
}

// ConnectionLister also lists the names it knows.
type ConnectionLister interface {
	ConnectionLoader
	GetAllKeys() ([]string, error)
}

// GetConnectionType returns the type of the named connection.
func (c *File) GetConnectionType(connectionName string) (connectionType string, err error) {
	d, err := c.LoadConnection(connectionName)
	if err != nil {
		return "", err
	}
	return d.Type, nil
}

// LoadConnection fetches the named connection and checks it is complete.
func (c *File) LoadConnection(connectionName string) (shared.ConnectionDetails, error) {
	d := shared.ConnectionDetails{}
	if err := c.Get(connectionName, &d); err != nil {
		return d, err
	}
	if d.Type == "" { // if the connection was not found...
		return d, fmt.Errorf("connection %q is not configured: use the 'config' file or %v", connectionName, helper.GetDsnEnvVarName(connectionName))
	}
	if d.LogicalName == "" {
		d.LogicalName = connectionName
	}
	return d, nil
}

// AddConnection validates and saves d under its logical name.
func (c *File) AddConnection(d shared.ConnectionDetails) error {
	if err := helper.ValidateStructIsPopulated(d); err != nil {
		return err
	}
	return c.Set(d.LogicalName, d)
}

// EnvConnections loads connections from FL_<NAME>_DSN environment variables, for twelve-factor mode.
// The connection type is taken from the DSN scheme.
type EnvConnections struct {
	// Names lists the connections reported by GetAllKeys.
	Names []string
}

func (e *EnvConnections) LoadConnection(connectionName string) (shared.ConnectionDetails, error) {
	name := helper.GetDsnEnvVarName(connectionName)
	dsn, err := helper.GetEnvVar(name, true)
	if err != nil {
		return shared.ConnectionDetails{}, err
	}
	typ, err := DsnType(dsn)
	if err != nil {
		return shared.ConnectionDetails{}, fmt.Errorf("error reading %v: %w", name, err)
	}
	return shared.ConnectionDetails{
		Type:        typ,
		LogicalName: connectionName,
		Data:        map[string]string{shared.DefaultConnectionKeyNames.Dsn: dsn},
	}, nil
}

func (e *EnvConnections) GetAllKeys() ([]string, error) {
	retval := append([]string(nil), e.Names...)
	sort.Strings(retval)
	return retval, nil
}

// DsnType returns the connection type named by the scheme of dsn, e.g. postgres://... => postgres.
func DsnType(dsn string) (string, error) {
	scheme := strings.ToLower(strings.SplitN(dsn, ":", 2)[0])
	switch scheme {
	case "netezza", "snowflake", "s3":
		return scheme, nil
	}
	u, err := dburl.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("unsupported DSN %q", shared.RedactDsn("", dsn))
	}
	d, err := shared.GetDialect(u.Driver)
	if err != nil {
		return "", err
	}
	return d.Name(), nil
}
