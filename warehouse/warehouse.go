// Package warehouse replaces the content of one (table, partition) of the destination warehouse with a new set
// of rows. Loads delete the partition then insert, so reloading the same rows is a no-op on final state.
package warehouse

import (
	"context"
	"strings"
	"time"

	om "github.com/cevaris/ordered_map"
	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/partition"
	"github.com/relloyd/forklift/stream"
)

// DefaultPartitionColumn is the column that holds the partition key when a Destination does not name one.
const DefaultPartitionColumn = "partition_key"

// Warehouse is the destination capability used by the Loader.
type Warehouse interface {
	CreateDatabaseIfAbsent(ctx context.Context, name string) error
	TableExists(ctx context.Context, database, table string) (bool, error)
	Execute(ctx context.Context, script string) error
	DeletePartition(ctx context.Context, dest Destination, key partition.Key) (int64, error)
	BulkInsert(ctx context.Context, dest Destination, rows *stream.Rows) (int64, error)
	Query(ctx context.Context, sql string, args ...interface{}) (*stream.Rows, error)
	CreateTableFromRows(ctx context.Context, dest Destination, rows *stream.Rows) error
}

// Destination is a partitioned warehouse table.
type Destination struct {
	Database string `json:"database" yaml:"database"`                            // created if absent; optional
	Table    string `json:"table" yaml:"table" errorTxt:"table" mandatory:"yes"` // target table name
	// DDL is an idempotent script creating the table; empty creates it from the first rows loaded.
	// The table must declare the partition column unless PartitionExpr is set.
	DDL             string `json:"ddl,omitempty" yaml:"ddl,omitempty"`
	PartitionColumn string `json:"partitionColumn,omitempty" yaml:"partitionColumn,omitempty"`
	PartitionExpr   string `json:"partitionExpr,omitempty" yaml:"partitionExpr,omitempty"` // SQL computing a row's partition key; defaults to PartitionColumn
	DropPartition   bool   `json:"dropPartition,omitempty" yaml:"dropPartition,omitempty"` // use the engine-native partition drop where available
	// Columns optionally maps stream column names to table column names, in insert order.
	Columns *om.OrderedMap `json:"-" yaml:"-"`
}

func (d Destination) String() string {
	if d.Database == "" {
		return d.Table
	}
	return d.Database + "." + d.Table
}

// GetPartitionColumn returns the partition column, defaulting to DefaultPartitionColumn.
func (d Destination) GetPartitionColumn() string {
	if d.PartitionColumn == "" {
		return DefaultPartitionColumn
	}
	return d.PartitionColumn
}

// GetPartitionExpr returns the SQL used to select a partition's rows.
func (d Destination) GetPartitionExpr() string {
	if d.PartitionExpr == "" {
		return d.GetPartitionColumn()
	}
	return d.PartitionExpr
}

// Validate checks the destination before any I/O.
func (d Destination) Validate() error {
	if strings.TrimSpace(d.Table) == "" {
		return errs.InvalidArgument("destination table is missing")
	}
	if strings.ContainsAny(d.Table+d.Database, " ;") {
		return errs.InvalidArgument("bad destination name %q", d.String())
	}
	return nil
}

// Observer receives the outcome of every partition load.
type Observer interface {
	PartitionLoaded(table string, key partition.Key, rows int64, elapsed time.Duration, err error)
}
