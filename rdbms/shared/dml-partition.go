package shared

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/forklift/stream"
)

// SqlPartitionDelete generates the DELETE that empties one partition of a table.
type SqlPartitionDelete struct {
	SqlStatementGeneratorConfig
	PartitionExpr string // SQL expression computing a row's partition key
	sqlStmt       string
}

// NewPartitionDeleteGenerator creates a generator for
// delete from [schema.]table where <partitionExpr> = <bind>.
func NewPartitionDeleteGenerator(cfg *SqlStatementGeneratorConfig, partitionExpr string) (*SqlPartitionDelete, error) {
	if err := FixSqlStatementGeneratorConfig(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(partitionExpr) == "" {
		return nil, errors.New("missing partition expression")
	}
	o := &SqlPartitionDelete{SqlStatementGeneratorConfig: *cfg, PartitionExpr: partitionExpr}
	o.sqlStmt = `delete from <SCHEMA><SEPARATOR><TABLE> where <EXPR> = <BIND>`
	o.sqlStmt = strings.Replace(o.sqlStmt, "<SCHEMA>", o.OutputSchema, 1)
	o.sqlStmt = strings.Replace(o.sqlStmt, "<SEPARATOR>", o.SchemaSeparator, 1)
	o.sqlStmt = strings.Replace(o.sqlStmt, "<TABLE>", o.OutputTable, 1)
	o.sqlStmt = strings.Replace(o.sqlStmt, "<EXPR>", o.PartitionExpr, 1)
	o.sqlStmt = strings.Replace(o.sqlStmt, "<BIND>", o.Dialect.Placeholder(1), 1)
	o.Log.Debug("setup partition DELETE generator with SQL: ", o.sqlStmt)
	return o, nil
}

func (o *SqlPartitionDelete) GetStatement() string {
	return o.sqlStmt
}

// GetTruncateStatement returns the statement emptying a native partition table.
func GetTruncateStatement(qualifiedTable string) string {
	return fmt.Sprintf("truncate table %v", qualifiedTable)
}

// GetCreateTableStatement builds a CREATE TABLE for the columns of rows, typing each column from its first
// non-nil value.
func GetCreateTableStatement(d Dialect, schema, table string, rows *stream.Rows) (string, error) {
	if rows == nil || len(rows.Columns) == 0 {
		return "", errors.New("no columns supplied to create table")
	}
	cols := make([]string, len(rows.Columns))
	for idx, c := range rows.Columns {
		var sample interface{}
		for _, r := range rows.Values {
			if r[idx] != nil {
				sample = r[idx]
				break
			}
		}
		cols[idx] = fmt.Sprintf("%v %v", c, d.ColumnType(sample))
	}
	return fmt.Sprintf("create table %v (%v)", d.Qualify(schema, table), strings.Join(cols, ", ")), nil
}
