package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/relloyd/forklift/constants"
)

// Dialect generates the engine-specific SQL needed by the warehouse loader.
type Dialect interface {
	Name() string
	// Placeholder returns the bind variable for the nth (1-based) argument.
	Placeholder(n int) string
	// Qualify returns [schema.]table, leaving out the schema when the engine has none.
	Qualify(schema, table string) string
	// CreateSchemaSql returns idempotent DDL creating schema, or "" when there is nothing to create.
	CreateSchemaSql(schema string) string
	// TableExistsSql returns a query selecting a count of matching tables.
	TableExistsSql(schema, table string) (string, []interface{})
	// PartitionChild returns the name of the native table holding partition key of table, if the engine
	// stores partitions as child tables.
	PartitionChild(table string, key string) (string, bool)
	// ColumnType maps a Go value to a column type used when creating tables from rows.
	ColumnType(v interface{}) string
}

type columnTypes struct {
	integer, float, boolean, timestamp, text, binary string
}

type sqlDialect struct {
	name             string
	bindStyle        string // "?" | "$" | "@p"
	defaultSchema    string
	hasSchemas       bool
	createSchemaTxt  string // %[1]v is the schema name
	tableExistsTxt   string // <P1> schema, <P2> table
	nativePartitions bool
	types            columnTypes
}

var dialects = map[string]*sqlDialect{
	constants.ConnectionTypeSqlite: {
		name:           constants.ConnectionTypeSqlite,
		bindStyle:      "?",
		tableExistsTxt: "select count(*) from sqlite_master where type = 'table' and <P1> is not null and name = <P2>",
		types:          columnTypes{"integer", "real", "integer", "timestamp", "text", "blob"},
	},
	constants.ConnectionTypePostgres: {
		name:             constants.ConnectionTypePostgres,
		bindStyle:        "$",
		defaultSchema:    "public",
		hasSchemas:       true,
		createSchemaTxt:  "create schema if not exists %[1]v",
		tableExistsTxt:   "select count(*) from information_schema.tables where table_schema = lower(<P1>) and table_name = lower(<P2>)",
		nativePartitions: true,
		types:            columnTypes{"bigint", "double precision", "boolean", "timestamp", "text", "bytea"},
	},
	constants.ConnectionTypeSqlServer: {
		name:            constants.ConnectionTypeSqlServer,
		bindStyle:       "@p",
		defaultSchema:   "dbo",
		hasSchemas:      true,
		createSchemaTxt: "if schema_id('%[1]v') is null exec('create schema %[1]v')",
		tableExistsTxt:  "select count(*) from information_schema.tables where table_schema = <P1> and table_name = <P2>",
		types:           columnTypes{"bigint", "float", "bit", "datetime2", "nvarchar(max)", "varbinary(max)"},
	},
	constants.ConnectionTypeSnowflake: {
		name:            constants.ConnectionTypeSnowflake,
		bindStyle:       "?",
		defaultSchema:   "PUBLIC",
		hasSchemas:      true,
		createSchemaTxt: "create schema if not exists %[1]v",
		tableExistsTxt:  "select count(*) from information_schema.tables where table_schema = upper(<P1>) and table_name = upper(<P2>)",
		types:           columnTypes{"number(38,0)", "float", "boolean", "timestamp_ntz", "varchar", "binary"},
	},
	constants.ConnectionTypeNetezza: {
		name:           constants.ConnectionTypeNetezza,
		bindStyle:      "$",
		defaultSchema:  "ADMIN",
		hasSchemas:     true,
		tableExistsTxt: "select count(*) from _v_table where schema = upper(<P1>) and tablename = upper(<P2>)",
		types:          columnTypes{"bigint", "double precision", "boolean", "timestamp", "nvarchar(4000)", "varbinary(64000)"},
	},
}

var dialectAliases = map[string]string{
	"sqlite3":       constants.ConnectionTypeSqlite,
	"moderncsqlite": constants.ConnectionTypeSqlite,
	"file":          constants.ConnectionTypeSqlite,
	"postgresql":    constants.ConnectionTypePostgres,
	"pgx":           constants.ConnectionTypePostgres,
	"pg":            constants.ConnectionTypePostgres,
	"mssql":         constants.ConnectionTypeSqlServer,
	"ms":            constants.ConnectionTypeSqlServer,
	"sf":            constants.ConnectionTypeSnowflake,
	"nzgo":          constants.ConnectionTypeNetezza,
}

// GetDialect returns the dialect for a connection type or driver name.
func GetDialect(dbType string) (Dialect, error) {
	t := strings.ToLower(strings.TrimSpace(dbType))
	if a, ok := dialectAliases[t]; ok {
		t = a
	}
	d, ok := dialects[t]
	if !ok {
		return nil, fmt.Errorf("unsupported database type, %q", dbType)
	}
	return d, nil
}

func (d *sqlDialect) Name() string {
	return d.name
}

func (d *sqlDialect) Placeholder(n int) string {
	if d.bindStyle == "?" {
		return "?"
	}
	return fmt.Sprintf("%v%v", d.bindStyle, n)
}

func (d *sqlDialect) Qualify(schema, table string) string {
	if !d.hasSchemas || schema == "" {
		return table
	}
	return schema + "." + table
}

func (d *sqlDialect) CreateSchemaSql(schema string) string {
	if d.createSchemaTxt == "" || schema == "" {
		return ""
	}
	return fmt.Sprintf(d.createSchemaTxt, schema)
}

func (d *sqlDialect) TableExistsSql(schema, table string) (string, []interface{}) {
	if schema == "" {
		schema = d.defaultSchema
	}
	q := strings.Replace(d.tableExistsTxt, "<P1>", d.Placeholder(1), 1)
	q = strings.Replace(q, "<P2>", d.Placeholder(2), 1)
	return q, []interface{}{schema, table}
}

func (d *sqlDialect) PartitionChild(table string, key string) (string, bool) {
	if !d.nativePartitions {
		return "", false
	}
	st := SchemaTable{SchemaTable: table}
	return st.AppendSuffix("_" + key), true
}

func (d *sqlDialect) ColumnType(v interface{}) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return d.types.integer
	case float32, float64:
		return d.types.float
	case bool:
		return d.types.boolean
	case time.Time, *time.Time:
		return d.types.timestamp
	case []byte:
		return d.types.binary
	default:
		return d.types.text
	}
}
