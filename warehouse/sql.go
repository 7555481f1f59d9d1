package warehouse

import (
	"context"
	"fmt"

	om "github.com/cevaris/ordered_map"
	"github.com/pkg/errors"
	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/partition"
	"github.com/relloyd/forklift/rdbms"
	"github.com/relloyd/forklift/rdbms/shared"
	"github.com/relloyd/forklift/stream"
)

// SQLWarehouse implements Warehouse on a database/sql connection.
// The Destination Database maps to a schema on engines that have them and is ignored by SQLite.
type SQLWarehouse struct {
	Log             logger.Logger
	Conn            shared.Connector
	InsertBatchRows int // rows per multi-row INSERT
}

// NewSQLWarehouse wraps conn.
func NewSQLWarehouse(log logger.Logger, conn shared.Connector) *SQLWarehouse {
	return &SQLWarehouse{Log: log, Conn: conn, InsertBatchRows: constants.DefaultInsertBatchRows}
}

func (w *SQLWarehouse) dialect() shared.Dialect {
	return w.Conn.GetDialect()
}

func (w *SQLWarehouse) CreateDatabaseIfAbsent(ctx context.Context, name string) error {
	stmt := w.dialect().CreateSchemaSql(name)
	if stmt == "" { // if the engine has nothing to create...
		return nil
	}
	_, err := w.Conn.ExecContext(ctx, stmt)
	return err
}

func (w *SQLWarehouse) TableExists(ctx context.Context, database, table string) (bool, error) {
	q, args := w.dialect().TableExistsSql(database, table)
	rows, err := rdbms.QueryRows(ctx, w.Log, w.Conn, q, args...)
	if err != nil {
		return false, err
	}
	if rows.Len() != 1 {
		return false, errors.Errorf("unexpected result checking for table %v", table)
	}
	switch n := rows.Values[0][0].(type) {
	case int64:
		return n > 0, nil
	case int32:
		return n > 0, nil
	case int:
		return n > 0, nil
	case float64:
		return n > 0, nil
	case string:
		return n != "0", nil
	default:
		return false, errors.Errorf("unexpected count type %T checking for table %v", n, table)
	}
}

func (w *SQLWarehouse) Execute(ctx context.Context, script string) error {
	return rdbms.ExecScript(ctx, w.Log, w.Conn, script)
}

func (w *SQLWarehouse) Query(ctx context.Context, sql string, args ...interface{}) (*stream.Rows, error) {
	return rdbms.QueryRows(ctx, w.Log, w.Conn, sql, args...)
}

// DeletePartition empties the partition. With dest.DropPartition set and a native partition table present
// it truncates that table, otherwise it deletes by the partition expression.
func (w *SQLWarehouse) DeletePartition(ctx context.Context, dest Destination, key partition.Key) (int64, error) {
	if dest.DropPartition {
		if child, ok := w.dialect().PartitionChild(dest.Table, key.String()); ok {
			exists, err := w.TableExists(ctx, dest.Database, child)
			if err != nil {
				return 0, err
			}
			if exists {
				_, err = w.Conn.ExecContext(ctx, shared.GetTruncateStatement(w.dialect().Qualify(dest.Database, child)))
				return 0, err
			}
			w.Log.Debug("no native partition table ", child, ": deleting rows instead")
		}
	}
	gen, err := shared.NewPartitionDeleteGenerator(w.generatorConfig(dest, nil), dest.GetPartitionExpr())
	if err != nil {
		return 0, err
	}
	res, err := w.Conn.ExecContext(ctx, gen.GetStatement(), key.String())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// BulkInsert inserts rows in batches of InsertBatchRows inside one transaction.
func (w *SQLWarehouse) BulkInsert(ctx context.Context, dest Destination, rows *stream.Rows) (n int64, err error) {
	if rows.Len() == 0 {
		return 0, nil
	}
	cols, idx, err := targetColumns(dest, rows)
	if err != nil {
		return 0, err
	}
	gen, err := shared.NewInsertGenerator(w.generatorConfig(dest, cols))
	if err != nil {
		return 0, err
	}
	batchSize := w.InsertBatchRows
	if batchSize <= 0 {
		batchSize = constants.DefaultInsertBatchRows
	}
	tx, err := w.Conn.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	flush := func() error {
		if len(gen.GetValues()) == 0 {
			return nil
		}
		res, err := tx.ExecContext(ctx, gen.GetStatement(), gen.GetValues()...)
		if err != nil {
			return err
		}
		c, _ := res.RowsAffected()
		n += c
		return nil
	}
	gen.InitBatch(batchSize)
	for _, r := range rows.Values {
		values := make([]interface{}, len(idx))
		for i, pos := range idx {
			values[i] = r[pos]
		}
		full, err := gen.AddValuesToBatch(values)
		if err != nil {
			return n, err
		}
		if full {
			if err = flush(); err != nil {
				return n, err
			}
			gen.InitBatch(batchSize)
		}
	}
	if err = flush(); err != nil {
		return n, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (w *SQLWarehouse) CreateTableFromRows(ctx context.Context, dest Destination, rows *stream.Rows) error {
	stmt, err := shared.GetCreateTableStatement(w.dialect(), dest.Database, dest.Table, rows)
	if err != nil {
		return err
	}
	_, err = w.Conn.ExecContext(ctx, stmt)
	return err
}

func (w *SQLWarehouse) generatorConfig(dest Destination, cols *om.OrderedMap) *shared.SqlStatementGeneratorConfig {
	return &shared.SqlStatementGeneratorConfig{
		Log:          w.Log,
		Dialect:      w.dialect(),
		OutputSchema: dest.Database,
		OutputTable:  dest.Table,
		TargetCols:   cols,
	}
}

// targetColumns returns dest.Columns or, when unset, maps every stream column to itself.
// It also returns the position in rows of each stream field, in insert order.
func targetColumns(dest Destination, rows *stream.Rows) (*om.OrderedMap, []int, error) {
	cols := om.NewOrderedMap()
	if dest.Columns != nil && dest.Columns.Len() > 0 {
		iter := dest.Columns.IterFunc()
		for kv, ok := iter(); ok; kv, ok = iter() {
			cols.Set(kv.Key, kv.Value)
		}
		// The partition column added by the loader is always written.
		pc := dest.GetPartitionColumn()
		if _, ok := cols.Get(pc); !ok {
			if _, inRows := rows.ColumnIndex(pc); inRows {
				cols.Set(pc, pc)
			}
		}
	} else {
		for _, c := range rows.Columns {
			cols.Set(c, c)
		}
	}
	idx := make([]int, 0, cols.Len())
	iter := cols.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		field := fmt.Sprintf("%v", kv.Key)
		pos, found := rows.ColumnIndex(field)
		if !found {
			return nil, nil, errors.Errorf("field %q mapped to column %v does not exist in the stream", field, kv.Value)
		}
		idx = append(idx, pos)
	}
	return cols, idx, nil
}
