package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/partition"
	"github.com/relloyd/forklift/stream"
)

// Loader implements the partition drop-and-reload contract.
//
// After a successful Load the partition holds exactly the supplied rows, however many times it ran before.
// Two loads of the same partition may race unless a Locker is configured; the final state is still that of
// whichever load finished last.
type Loader struct {
	Log       logger.Logger
	Warehouse Warehouse
	Locker    PartitionLocker // optional
	Observer  Observer        // optional
}

// NewLoader returns a Loader without partition locking.
func NewLoader(log logger.Logger, w Warehouse) *Loader {
	return &Loader{Log: log, Warehouse: w}
}

// Load replaces the content of (dest, key) with rows and returns the number of rows inserted.
// An empty rows leaves the partition empty and succeeds with 0.
// A failed insert after a successful delete returns *errs.PartialWriteError.
func (l *Loader) Load(ctx context.Context, dest Destination, key partition.Key, rows *stream.Rows) (n int64, err error) {
	if err = dest.Validate(); err != nil {
		return 0, err
	}
	if _, err = partition.ParseKey(key.String()); err != nil {
		return 0, err
	}
	log := l.Log.WithField("table", dest.String()).WithField("partition", key.String())
	start := time.Now()
	defer func() {
		if l.Observer != nil {
			l.Observer.PartitionLoaded(dest.String(), key, n, time.Since(start), err)
		}
	}()
	if l.Locker != nil {
		unlock, lerr := l.Locker.Lock(ctx, lockName(dest, key))
		if lerr != nil {
			return 0, errors.Wrapf(lerr, "error locking partition %v of %v", key, dest)
		}
		defer func() {
			if uerr := unlock(context.Background()); uerr != nil {
				log.Warn("error releasing partition lock: ", uerr)
			}
		}()
	}
	rows, err = withPartitionColumn(dest, key, rows)
	if err != nil {
		return 0, err
	}
	log.Debug("partition load is running")
	// Step 1: database.
	if dest.Database != "" {
		if err = l.Warehouse.CreateDatabaseIfAbsent(ctx, dest.Database); err != nil {
			return 0, errors.Wrapf(err, "error creating database %v", dest.Database)
		}
	}
	// Step 2: table.
	exists, err := l.Warehouse.TableExists(ctx, dest.Database, dest.Table)
	if err != nil {
		return 0, errors.Wrapf(err, "error checking table %v exists", dest)
	}
	if !exists {
		switch {
		case dest.DDL != "":
			log.Info("creating table using the supplied schema definition")
			if err = l.Warehouse.Execute(ctx, dest.DDL); err != nil {
				return 0, errors.Wrapf(err, "error applying schema definition for %v", dest)
			}
		case len(rows.Columns) > 0:
			log.Info("creating table from the rows supplied")
			if err = l.Warehouse.CreateTableFromRows(ctx, dest, rows); err != nil {
				return 0, errors.Wrapf(err, "error creating table %v", dest)
			}
		default: // else there is no table, so no partition to empty and nothing to insert...
			log.Info("no table and no rows: nothing to load")
			return 0, nil
		}
	}
	// Step 3: delete the partition. The insert must not run if this fails.
	deleted, err := l.Warehouse.DeletePartition(ctx, dest, key)
	if err != nil {
		return 0, errors.Wrapf(err, "error deleting partition %v of %v", key, dest)
	}
	log.Debug("deleted ", deleted, " rows")
	// Step 4: insert.
	if rows.Len() == 0 {
		log.Info("partition load complete: partition left empty")
		return 0, nil
	}
	n, err = l.Warehouse.BulkInsert(ctx, dest, rows)
	if err != nil {
		return n, &errs.PartialWriteError{Table: dest.String(), Partition: key.String(), Err: err}
	}
	log.Info("partition load complete: ", n, " rows loaded")
	return n, nil
}

// withPartitionColumn returns rows carrying the partition column, adding it with the value key when it is
// missing. Rows already carrying the column must all belong to key.
func withPartitionColumn(dest Destination, key partition.Key, rows *stream.Rows) (*stream.Rows, error) {
	if rows == nil {
		return stream.NewRows(), nil
	}
	col := dest.GetPartitionColumn()
	if idx, ok := rows.ColumnIndex(col); ok {
		for _, r := range rows.Values {
			if v := fmt.Sprintf("%v", r[idx]); v != key.String() {
				return nil, errs.InvalidArgument("row with %v = %v does not belong to partition %v", col, v, key)
			}
		}
		return rows, nil
	}
	if len(rows.Columns) == 0 || dest.PartitionExpr != "" { // if the table computes its own partition...
		return rows, nil
	}
	out := stream.NewRows(rows.Columns...)
	out.Values = make([][]interface{}, len(rows.Values))
	for i, r := range rows.Values {
		out.Values[i] = append([]interface{}(nil), r...)
	}
	if err := out.AddColumn(col, func([]interface{}) interface{} { return key.String() }); err != nil {
		return nil, err
	}
	return out, nil
}

func lockName(dest Destination, key partition.Key) string {
	return fmt.Sprintf("forklift:partition:%v:%v", dest, key)
}
