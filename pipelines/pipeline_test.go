package pipelines

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/rdbms"
	"github.com/relloyd/forklift/rdbms/shared"
	"github.com/relloyd/forklift/runguard"
	"github.com/relloyd/forklift/sources"
	"github.com/relloyd/forklift/stream"
	"github.com/relloyd/forklift/warehouse"
)

type testEnv struct {
	*Env
	src      shared.Connector
	wh       shared.Connector
	registry *runguard.MemoryRegistry
}

// newTestEnv returns an env with a sqlite source named "source" and a sqlite warehouse.
func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := logger.NewLogger("forklift", "error", false)
	dir := t.TempDir()
	src, err := rdbms.OpenSqlite(ctx, log, filepath.Join(dir, "source.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = src.Close() })
	wh, err := rdbms.OpenSqlite(ctx, log, filepath.Join(dir, "warehouse.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = wh.Close() })
	reg := runguard.NewMemoryRegistry()
	w := warehouse.NewSQLWarehouse(log, wh)
	return &testEnv{
		Env: &Env{
			Log:         log,
			Now:         func() time.Time { return now },
			Guard:       runguard.NewGuard(log, reg),
			Warehouse:   w,
			Loader:      warehouse.NewLoader(log, w),
			Qualify:     wh.GetDialect().Qualify,
			Placeholder: wh.GetDialect().Placeholder,
			Sources:     map[string]*sources.SQLSource{"source": sources.NewSQLSource(log, src, nil)},
			ScriptDir:   dir,
		},
		src:      src,
		wh:       wh,
		registry: reg,
	}
}

func (e *testEnv) exec(t *testing.T, conn shared.Connector, script string) {
	t.Helper()
	if err := rdbms.ExecScript(context.Background(), e.Log, conn, script); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) query(t *testing.T, sql string) *stream.Rows {
	t.Helper()
	rows, err := rdbms.QueryRows(context.Background(), e.Log, e.wh, sql)
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

// run builds and runs the named pipeline with its defaults overlaid by params.
func (e *testEnv) run(t *testing.T, d Definition, params map[string]string) (*flow.RunResult, error) {
	t.Helper()
	p, err := d.Params(params)
	if err != nil {
		t.Fatal(err)
	}
	g, err := d.Build(e.Env)
	if err != nil {
		t.Fatal(err)
	}
	ex := flow.NewExecutor(e.Log)
	ex.Recorder = e.registry
	return ex.Run(context.Background(), g, p)
}

func TestRegistry(t *testing.T) {
	t.Log("Test 1 - the built-in pipelines register and build")
	r, err := NewRegistry(All()...)
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"catches", "clean-runs", "drop-table", "file-import", "missions-api", "segments", "sync-table"}
	if !reflect.DeepEqual(r.Names(), expected) {
		t.Fatalf("expected %v; got %v", expected, r.Names())
	}
	for _, name := range r.Names() {
		if _, err = r.Graph(name, &Env{}); err != nil {
			t.Fatalf("pipeline %v does not build: %v", name, err)
		}
	}

	t.Log("Test 2 - an unknown pipeline is an invalid argument listing the known ones")
	if _, err = r.Get("nope"); !errors.Is(err, errs.ErrInvalidArgument) || !strings.Contains(err.Error(), "catches") {
		t.Fatalf("expected invalid argument; got %v", err)
	}

	t.Log("Test 3 - duplicates are rejected")
	if _, err = NewRegistry(Catches(), Catches()); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected a duplicate error; got %v", err)
	}
}

func TestDefinition_Validate(t *testing.T) {
	build := func(*Env) (*flow.Graph, error) { return nil, nil }
	cases := []struct {
		name string
		def  Definition
		ok   bool
	}{
		{"valid", Definition{Name: "x", Build: build, Schedule: "*/5 * * * *", Defaults: map[string]string{"a": "1"}}, true},
		{"no name", Definition{Build: build}, false},
		{"no graph", Definition{Name: "x"}, false},
		{"bad schedule", Definition{Name: "x", Build: build, Schedule: "every day"}, false},
		{"required without default", Definition{Name: "x", Build: build, Defaults: map[string]string{"a": ""}, Required: []string{"a"}}, false},
		{"clock with unknown param", Definition{Name: "x", Build: build, Clocks: []Clock{{Schedule: "0 1 * * *", Params: map[string]string{"b": "2"}}}}, false},
		{"bad clock schedule", Definition{Name: "x", Build: build, Clocks: []Clock{{Schedule: "61 * * * *"}}}, false},
	}
	for _, c := range cases {
		err := c.def.Validate()
		if c.ok && err != nil {
			t.Fatalf("%v: unexpected error %v", c.name, err)
		}
		if !c.ok && !errors.Is(err, errs.ErrInvalidArgument) {
			t.Fatalf("%v: expected invalid argument; got %v", c.name, err)
		}
	}
}

func TestDefinition_Params(t *testing.T) {
	d := Catches()
	p, err := d.Params(map[string]string{ParamStartMonthsAgo: "5"}, map[string]string{ParamEndMonthsAgo: "2"})
	if err != nil {
		t.Fatal(err)
	}
	if p[ParamStartMonthsAgo] != "5" || p[ParamEndMonthsAgo] != "2" || p[ParamSource] != "monitorfish_remote" {
		t.Fatalf("unexpected params %v", p)
	}
	if d.Defaults[ParamStartMonthsAgo] != "1" {
		t.Fatal("expected the defaults to be left alone")
	}
	if _, err = d.Params(map[string]string{"nope": "1"}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected an unknown parameter to be rejected; got %v", err)
	}
}

func TestParams(t *testing.T) {
	now := time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC) // ISO year 2020

	t.Log("Test 1 - current years follow the year mode")
	y, err := yearParam(map[string]string{"y": "current"}, "y", now)
	if err != nil || y != 2021 {
		t.Fatalf("expected 2021; got %v, %v", y, err)
	}
	y, err = yearParam(map[string]string{"y": "Current", ParamYearMode: "iso"}, "y", now)
	if err != nil || y != 2020 {
		t.Fatalf("expected 2020; got %v, %v", y, err)
	}
	if _, err = yearParam(map[string]string{"y": "current", ParamYearMode: "lunar"}, "y", now); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected a bad year mode to be rejected; got %v", err)
	}

	t.Log("Test 2 - months and integers")
	m, err := monthParam(map[string]string{"m": "current"}, "m", now)
	if err != nil || m != 1 {
		t.Fatalf("expected 1; got %v, %v", m, err)
	}
	if _, err = intParam(map[string]string{"i": "ten"}, "i"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected a bad integer to be rejected; got %v", err)
	}
	if _, err = positiveIntParam(map[string]string{"i": "0"}, "i"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected zero to be rejected; got %v", err)
	}

	t.Log("Test 3 - lists")
	l, err := listParam(map[string]string{"l": " a, b ,,c"}, "l")
	if err != nil || !reflect.DeepEqual(l, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected list %v, %v", l, err)
	}
	if _, err = listParam(map[string]string{"l": " , "}, "l"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected an empty list to be rejected; got %v", err)
	}
}

func TestBind(t *testing.T) {
	dollar := func(n int) string { return "$" + string(rune('0'+n)) }
	sql, args, err := bind("select x::text from t where a = :x and b = :y or c = :x", dollar, map[string]interface{}{"x": 1, "y": "two"})
	if err != nil {
		t.Fatal(err)
	}
	if sql != "select x::text from t where a = $1 and b = $2 or c = $3" {
		t.Fatalf("unexpected sql %q", sql)
	}
	if !reflect.DeepEqual(args, []interface{}{1, "two", 1}) {
		t.Fatalf("unexpected args %v", args)
	}
	if _, _, err = bind("select :a, :b", dollar, map[string]interface{}{"a": 1}); err == nil || !strings.Contains(err.Error(), "b") {
		t.Fatalf("expected a missing parameter error; got %v", err)
	}
}

func TestRender(t *testing.T) {
	got := render("create table {table} as select * from {other} where x = '{unknown}'", map[string]string{"table": "db.t", "other": "s"})
	expected := "create table db.t as select * from s where x = '{unknown}'"
	if got != expected {
		t.Fatalf("expected %q; got %q", expected, got)
	}
}

func TestChunk(t *testing.T) {
	got := chunk([]interface{}{1, 2, 3, 4, 5}, 2)
	expected := [][]interface{}{{1, 2}, {3, 4}, {5}}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v; got %v", expected, got)
	}
	if len(chunk(nil, 3)) != 0 {
		t.Fatal("expected no chunks")
	}
}
