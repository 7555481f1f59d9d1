package shared

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relloyd/forklift/constants"
	"github.com/xo/dburl"
)

var DefaultConnectionKeyNames = struct {
	Dsn  string
	Path string
}{
	Dsn:  "dsn",
	Path: "path",
}

// ConnectionDetails is intended to hold credentials for a logical database connection.
type ConnectionDetails struct {
	Type        string            `json:"type" errorTxt:"database type" mandatory:"yes" yaml:"type" mapstructure:"type"`
	LogicalName string            `json:"logicalName" errorTxt:"database logical name" mandatory:"yes" yaml:"logicalName" mapstructure:"logicalName"`
	Data        map[string]string `json:"data" yaml:"data" mapstructure:"data"`
}

// Dsn returns the data source name held in Data.
func (c ConnectionDetails) Dsn() string {
	return c.Data[DefaultConnectionKeyNames.Dsn]
}

// String redacts passwords and pretty-prints the contents of ConnectionDetails.
func (c ConnectionDetails) String() string {
	x := make([]string, 0, len(c.Data)+1)
	x = append(x, fmt.Sprintf("  type = %v", c.Type))
	if v, ok := c.Data[DefaultConnectionKeyNames.Dsn]; ok { // if there's a DSN...
		x = append(x, fmt.Sprintf("  dsn = %v", RedactDsn(c.Type, v)))
		return strings.Join(x, "\n")
	}
	// else there's no DSN... (could be an S3 or HTTP connection)
	keys := make([]string, 0, len(c.Data))
	for k := range c.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := c.Data[k]
		if isSecretKey(k) {
			v = "xxxxx"
		}
		x = append(x, fmt.Sprintf("  %v = %v", k, v))
	}
	return strings.Join(x, "\n")
}

// RedactDsn hides the password in a DSN of the given connection type.
func RedactDsn(connectionType string, dsn string) string {
	switch connectionType {
	case constants.ConnectionTypeNetezza:
		return NetezzaConnectionDetails{Dsn: dsn}.String()
	case constants.ConnectionTypeSnowflake:
		return redactUserInfo(dsn)
	default:
		u, err := dburl.Parse(dsn)
		if err != nil {
			return redactUserInfo(dsn)
		}
		return u.Redacted()
	}
}

// redactUserInfo replaces anything between the first ':' after the scheme and the last '@'.
func redactUserInfo(dsn string) string {
	scheme := ""
	rest := dsn
	if i := strings.Index(dsn, "://"); i >= 0 {
		scheme, rest = dsn[:i+3], dsn[i+3:]
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return dsn
	}
	userInfo := rest[:at]
	if i := strings.IndexAny(userInfo, ":/"); i >= 0 {
		userInfo = userInfo[:i+1] + "xxxxx"
	}
	return scheme + userInfo + rest[at:]
}

func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	return strings.Contains(k, "password") || strings.Contains(k, "secret") || strings.Contains(k, "key")
}

// DBConnections maps connection names used by pipelines to their details.
type DBConnections map[string]ConnectionDetails

// LoadConnection will load the connection named connectionName using the supplied getter and replace the entry in c.
func (c DBConnections) LoadConnection(i ConnectionGetter, connectionName string) error {
	d, err := i.LoadConnection(connectionName)
	if err != nil {
		return err
	}
	c[connectionName] = d
	return nil
}
