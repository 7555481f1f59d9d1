package rdbms

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"slices"
	"testing"

	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/rdbms/shared"
)

func TestOpenDbConnection_Sqlite(t *testing.T) {
	log := logger.NewLogger("forklift", "error", false)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	t.Log("Test 1 - open via an explicit path")
	db, err := OpenDbConnection(ctx, log, shared.ConnectionDetails{
		Type:        constants.ConnectionTypeSqlite,
		LogicalName: "test",
		Data:        map[string]string{"path": path},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if db.GetType() != constants.ConnectionTypeSqlite || db.GetDialect().Name() != constants.ConnectionTypeSqlite {
		t.Fatalf("unexpected connection type %v", db.GetType())
	}

	t.Log("Test 2 - scripts and queries")
	script := `
-- a comment; with a semicolon
create table t (id integer, name text);
insert into t values (1, 'a;b');
insert into t values (2, null);
`
	if err := ExecScript(ctx, log, db, script); err != nil {
		t.Fatal(err)
	}
	rows, err := QueryRows(ctx, log, db, "select id, name from t where id >= ? order by id", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rows.Columns, []string{"id", "name"}) || rows.Len() != 2 {
		t.Fatalf("unexpected result %v %v", rows.Columns, rows.Values)
	}
	if rows.Values[0][0] != int64(1) || rows.Values[0][1] != "a;b" || rows.Values[1][1] != nil {
		t.Fatalf("unexpected values %v", rows.Values)
	}

	t.Log("Test 3 - unsupported types are rejected")
	if _, err := OpenDbConnection(ctx, log, shared.ConnectionDetails{Type: "oracle"}); err == nil {
		t.Fatal("expected an error for an unsupported type")
	}
	if _, err := OpenDbConnection(ctx, log, shared.ConnectionDetails{Type: constants.ConnectionTypeSqlite}); err == nil {
		t.Fatal("expected an error for a missing sqlite path")
	}
}

func TestSplitStatements(t *testing.T) {
	got := SplitStatements("select 1;\n\n  ;select ';' from x;\nselect 2")
	expected := []string{"select 1", "select ';' from x", "select 2"}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %q; got %q", expected, got)
	}
}

func TestSnowflakeParseDSN(t *testing.T) {
	if _, err := SnowflakeParseDSN("user:pw@acct/db"); err == nil {
		t.Fatal("expected an error for a DSN without the snowflake:// prefix")
	}
	d, err := SnowflakeParseDSN("snowflake://user:pw@acct/db/sch?warehouse=wh")
	if err != nil {
		t.Fatal(err)
	}
	if d.User != "user" || d.DBName != "db" || d.Schema != "sch" || d.Warehouse != "wh" {
		t.Fatalf("unexpected details %+v", d)
	}
	if d.String() == "" || reflect.DeepEqual(d.Password, d.String()) {
		t.Fatal("unexpected string form")
	}
}

func TestDriversRegistered(t *testing.T) {
	drivers := sql.Drivers()
	for _, d := range []string{"snowflake", "sqlite", "pgx", "sqlserver", "nzgo"} {
		if !slices.Contains(drivers, d) {
			t.Fatalf("expected driver %v to be registered; got %v", d, drivers)
		}
	}
}
