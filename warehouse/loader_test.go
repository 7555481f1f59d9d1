package warehouse

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/partition"
	"github.com/relloyd/forklift/rdbms"
	"github.com/relloyd/forklift/stream"
)

func openTestWarehouse(t *testing.T) (*SQLWarehouse, logger.Logger) {
	t.Helper()
	log := logger.NewLogger("forklift", "error", false)
	conn, err := rdbms.OpenSqlite(context.Background(), log, filepath.Join(t.TempDir(), "wh.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewSQLWarehouse(log, conn), log
}

func tableContent(t *testing.T, w Warehouse, table string) [][]interface{} {
	t.Helper()
	rows, err := w.Query(context.Background(), fmt.Sprintf("select id, name, partition_key from %v order by partition_key, id", table))
	if err != nil {
		t.Fatal(err)
	}
	return rows.Values
}

func TestLoader_Sqlite(t *testing.T) {
	ctx := context.Background()
	w, log := openTestWarehouse(t)
	loader := NewLoader(log, w)
	dest := Destination{Database: "analytics", Table: "catches"}
	jan := partition.Key("202501")
	feb := partition.Key("202502")
	r1 := stream.NewRows("id", "name").MustAppend(1, "cod").MustAppend(2, "hake")
	r2 := stream.NewRows("id", "name").MustAppend(3, "ling")

	t.Log("Test 1 - a load into a missing table creates it from the rows")
	n, err := loader.Load(ctx, dest, jan, r1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows loaded; got %v", n)
	}

	t.Log("Test 2 - repeating the load leaves the same content")
	before := tableContent(t, w, "catches")
	if _, err = loader.Load(ctx, dest, jan, r1); err != nil {
		t.Fatal(err)
	}
	after := tableContent(t, w, "catches")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("expected idempotent reload; before %v after %v", before, after)
	}

	t.Log("Test 3 - a different batch replaces the partition and leaves others alone")
	if _, err = loader.Load(ctx, dest, feb, r1); err != nil {
		t.Fatal(err)
	}
	if _, err = loader.Load(ctx, dest, jan, r2); err != nil {
		t.Fatal(err)
	}
	got := tableContent(t, w, "catches")
	expected := [][]interface{}{
		{int64(3), "ling", "202501"},
		{int64(1), "cod", "202502"},
		{int64(2), "hake", "202502"},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v; got %v", expected, got)
	}

	t.Log("Test 4 - empty rows empty the partition")
	n, err = loader.Load(ctx, dest, jan, stream.NewRows("id", "name"))
	if err != nil || n != 0 {
		t.Fatalf("expected 0 rows and no error; got %v, %v", n, err)
	}
	if got := tableContent(t, w, "catches"); len(got) != 2 {
		t.Fatalf("expected only the February rows; got %v", got)
	}

	t.Log("Test 5 - rows from another partition are rejected")
	bad := stream.NewRows("id", "name", "partition_key").MustAppend(9, "x", "202412")
	if _, err = loader.Load(ctx, dest, jan, bad); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument; got %v", err)
	}

	t.Log("Test 6 - no table and no rows is a no-op")
	n, err = loader.Load(ctx, Destination{Table: "never_created"}, jan, nil)
	if err != nil || n != 0 {
		t.Fatalf("expected a no-op; got %v, %v", n, err)
	}
	if exists, _ := w.TableExists(ctx, "", "never_created"); exists {
		t.Fatal("expected no table to be created")
	}
}

func TestLoader_DDL(t *testing.T) {
	ctx := context.Background()
	w, log := openTestWarehouse(t)
	loader := NewLoader(log, w)
	dest := Destination{
		Table: "trips",
		DDL:   "create table if not exists trips (id integer, name text, partition_key text);",
	}
	w.InsertBatchRows = 2 // force more than one insert statement
	rows := stream.NewRows("id", "name")
	for i := 1; i <= 5; i++ {
		rows.MustAppend(i, fmt.Sprintf("t%v", i))
	}
	n, err := loader.Load(ctx, dest, "2024", rows)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("expected 5 rows; got %v", n)
	}
	if got := tableContent(t, w, "trips"); len(got) != 5 || got[4][2] != "2024" {
		t.Fatalf("unexpected content %v", got)
	}
	if _, err = loader.Load(ctx, dest, "24", rows); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected a bad key to be rejected; got %v", err)
	}
}

// fakeWarehouse records calls and fails on demand.
type fakeWarehouse struct {
	mu        sync.Mutex
	calls     []string
	exists    bool
	deleteErr error
	insertErr error
}

func (f *fakeWarehouse) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeWarehouse) CreateDatabaseIfAbsent(ctx context.Context, name string) error {
	f.record("database")
	return nil
}

func (f *fakeWarehouse) TableExists(ctx context.Context, database, table string) (bool, error) {
	f.record("exists")
	return f.exists, nil
}

func (f *fakeWarehouse) Execute(ctx context.Context, script string) error {
	f.record("execute")
	return nil
}

func (f *fakeWarehouse) DeletePartition(ctx context.Context, dest Destination, key partition.Key) (int64, error) {
	f.record("delete")
	return 0, f.deleteErr
}

func (f *fakeWarehouse) BulkInsert(ctx context.Context, dest Destination, rows *stream.Rows) (int64, error) {
	f.record("insert")
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	return int64(rows.Len()), nil
}

func (f *fakeWarehouse) Query(ctx context.Context, sql string, args ...interface{}) (*stream.Rows, error) {
	return stream.NewRows(), nil
}

func (f *fakeWarehouse) CreateTableFromRows(ctx context.Context, dest Destination, rows *stream.Rows) error {
	f.record("create")
	return nil
}

type observed struct {
	table string
	key   partition.Key
	rows  int64
	err   error
}

type fakeObserver struct {
	got []observed
}

func (o *fakeObserver) PartitionLoaded(table string, key partition.Key, rows int64, elapsed time.Duration, err error) {
	o.got = append(o.got, observed{table, key, rows, err})
}

func TestLoader_Failures(t *testing.T) {
	ctx := context.Background()
	log := logger.NewLogger("forklift", "error", false)
	rows := stream.NewRows("id").MustAppend(1)
	dest := Destination{Database: "db", Table: "t"}

	t.Log("Test 1 - a failed delete stops the load before any insert")
	fw := &fakeWarehouse{exists: true, deleteErr: errors.New("boom")}
	obs := &fakeObserver{}
	l := &Loader{Log: log, Warehouse: fw, Observer: obs}
	if _, err := l.Load(ctx, dest, "202501", rows); err == nil || errors.Is(err, errs.ErrPartialWrite) {
		t.Fatalf("expected a plain delete failure; got %v", err)
	}
	expected := []string{"database", "exists", "delete"}
	if !reflect.DeepEqual(fw.calls, expected) {
		t.Fatalf("expected calls %v; got %v", expected, fw.calls)
	}
	if len(obs.got) != 1 || obs.got[0].err == nil || obs.got[0].table != "db.t" {
		t.Fatalf("expected the observer to see the failure; got %+v", obs.got)
	}

	t.Log("Test 2 - a failed insert after the delete is a partial write")
	fw = &fakeWarehouse{exists: true, insertErr: errors.New("disk full")}
	l = NewLoader(log, fw)
	_, err := l.Load(ctx, dest, "202501", rows)
	var pw *errs.PartialWriteError
	if !errors.As(err, &pw) || !errors.Is(err, errs.ErrPartialWrite) {
		t.Fatalf("expected a partial write; got %v", err)
	}
	if pw.Table != "db.t" || pw.Partition != "202501" {
		t.Fatalf("unexpected partial write details %+v", pw)
	}

	t.Log("Test 3 - a missing table with DDL runs the DDL")
	fw = &fakeWarehouse{}
	l = NewLoader(log, fw)
	if _, err = l.Load(ctx, Destination{Table: "t", DDL: "create table t (id int)"}, "2025", rows); err != nil {
		t.Fatal(err)
	}
	expected = []string{"exists", "execute", "delete", "insert"}
	if !reflect.DeepEqual(fw.calls, expected) {
		t.Fatalf("expected calls %v; got %v", expected, fw.calls)
	}

	t.Log("Test 4 - a bad destination is rejected before any I/O")
	fw = &fakeWarehouse{}
	l = NewLoader(log, fw)
	if _, err = l.Load(ctx, Destination{Table: "t; drop table x"}, "2025", rows); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument; got %v", err)
	}
	if len(fw.calls) != 0 {
		t.Fatalf("expected no calls; got %v", fw.calls)
	}
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	t.Log("Test 1 - a held lock blocks a second caller until released")
	unlock, err := l.Lock(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err = l.Lock(tctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a timeout; got %v", err)
	}

	t.Log("Test 2 - other names are independent")
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	_ = unlockB(ctx)

	t.Log("Test 3 - releasing twice is harmless and the lock can be taken again")
	_ = unlock(ctx)
	_ = unlock(ctx)
	unlock, err = l.Lock(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	_ = unlock(ctx)

	t.Log("Test 4 - the loader holds the lock for the whole load")
	fw := &fakeWarehouse{exists: true}
	loader := &Loader{Log: logger.NewLogger("forklift", "error", false), Warehouse: fw, Locker: l}
	dest := Destination{Table: "t"}
	held, err := l.Lock(ctx, lockName(dest, "202501"))
	if err != nil {
		t.Fatal(err)
	}
	tctx2, cancel2 := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel2()
	if _, err = loader.Load(tctx2, dest, "202501", stream.NewRows("id").MustAppend(1)); err == nil {
		t.Fatal("expected the load to wait for the lock and time out")
	}
	if len(fw.calls) != 0 {
		t.Fatalf("expected no warehouse calls while locked; got %v", fw.calls)
	}
	_ = held(ctx)
}
