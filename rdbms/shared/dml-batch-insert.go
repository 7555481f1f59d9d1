package shared

import (
	"strings"

	h "github.com/relloyd/forklift/helper"

	"github.com/pkg/errors"
)

// SqlInsertTxtBatch implements SqlStmtTxtBatcher and
// is able to generate multi-row INSERT statements with batches of rows supplied.
type SqlInsertTxtBatch struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
	ColList []string // list of columns extracted from SqlStatementGeneratorConfig.
}

// NewInsertGenerator creates a new generator that implements interface SqlStmtTxtBatcher.
func NewInsertGenerator(cfg *SqlStatementGeneratorConfig) (*SqlInsertTxtBatch, error) {
	if err := FixSqlStatementGeneratorConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.TargetCols == nil || cfg.TargetCols.Len() == 0 {
		return nil, errors.New("no target columns supplied to the INSERT generator")
	}
	cfg.Log.Debug("Creating NewInsertGenerator")
	o := &SqlInsertTxtBatch{SqlStatementGeneratorConfig: *cfg}
	o.setupSqlStatement()
	return o, nil
}

func (o *SqlInsertTxtBatch) setupSqlStatement() {
	o.ColList = h.OrderedMapValuesToStringSlice(o.TargetCols)
	// Populate the SQL template.
	o.sqlStmtTemplate = `insert into <SCHEMA><SEPARATOR><TABLE> (<TGT-COLS>) values <VALUES>`
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<SCHEMA>", o.OutputSchema, 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<SEPARATOR>", o.SchemaSeparator, 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<TABLE>", o.OutputTable, 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<TGT-COLS>", strings.Join(o.ColList, ","), 1)
	o.Log.Debug("setup INSERT generator with SQL (VALUES pending): ", o.sqlStmtTemplate)
}

func (o *SqlInsertTxtBatch) InitBatch(batchSize int) {
	o.batchSize = batchSize
	o.rowsInBatch = 0
	// Allocate a new buffer to hold all values (args) to exec.
	o.sqlValues = make([]interface{}, 0, o.batchSize*len(o.ColList)) // many values per row in a batch.
}

func (o *SqlInsertTxtBatch) AddValuesToBatch(values []interface{}) (batchIsFull bool, err error) {
	if o.rowsInBatch >= o.batchSize {
		return true, errors.New("no more rows allowed in INSERT batch")
	}
	if len(values) != len(o.ColList) {
		return false, errors.New("the number of values supplied does not match the number of table columns")
	}
	o.sqlValues = append(o.sqlValues, values...)
	o.rowsInBatch++                          // keep track of how close we are to the batch limit.
	return o.rowsInBatch >= o.batchSize, nil // if full the caller should exec SQL.
}

func (o *SqlInsertTxtBatch) GetValues() []interface{} {
	return o.sqlValues
}

// GetStatement returns the INSERT for the rows added since InitBatch.
// The statement is cached while the number of rows matches the previous call.
func (o *SqlInsertTxtBatch) GetStatement() string {
	if o.sqlStmt == "" || o.previousNumRowsInBatch != o.rowsInBatch { // if we need to generate SQL...
		allRows := strings.Builder{}
		valIdx := 1
		for rowIdx := 0; rowIdx < o.rowsInBatch; rowIdx++ { // for each row...
			// Build the current row of bind variables: (p1, p2, pn)
			row := make([]string, len(o.ColList))
			for idy := range o.ColList {
				row[idy] = o.Dialect.Placeholder(valIdx)
				valIdx++
			}
			if rowIdx > 0 {
				allRows.WriteString(",")
			}
			allRows.WriteString("(" + strings.Join(row, ",") + ")")
		}
		o.sqlStmt = strings.Replace(o.sqlStmtTemplate, "<VALUES>", allRows.String(), 1)
		o.previousNumRowsInBatch = o.rowsInBatch
	} // else we have the same batch size and can use cached SQL...
	o.Log.Trace("SQL batch INSERT generated statement: ", o.sqlStmt)
	return o.sqlStmt
}
