package shared

import (
	"errors"

	om "github.com/cevaris/ordered_map"
	"github.com/relloyd/forklift/logger"
)

// SqlStatementGeneratorConfig configures the DML generators.
type SqlStatementGeneratorConfig struct {
	Log             logger.Logger
	Dialect         Dialect
	OutputSchema    string
	SchemaSeparator string
	OutputTable     string
	TargetCols      *om.OrderedMap // ordered map of: key = stream field name; value = target table column name
}

type sqlCoreCfg struct {
	sqlStmt                string
	sqlStmtTemplate        string
	sqlValues              []interface{} // slice to hold data values for all rows in batch
	batchSize              int
	rowsInBatch            int
	previousNumRowsInBatch int
}

// FixSqlStatementGeneratorConfig validates cfg and sets the schema separator.
func FixSqlStatementGeneratorConfig(cfg *SqlStatementGeneratorConfig) error {
	if cfg.OutputTable == "" {
		return errors.New("missing output table name")
	}
	if cfg.Dialect == nil {
		return errors.New("missing SQL dialect")
	}
	if cfg.OutputSchema == "" || cfg.Dialect.Qualify(cfg.OutputSchema, cfg.OutputTable) == cfg.OutputTable {
		cfg.SchemaSeparator = ""
		cfg.OutputSchema = ""
		cfg.Log.Debug("No output schema supplied; setting a blank separator.")
	} else {
		cfg.SchemaSeparator = "."
	}
	return nil
}
