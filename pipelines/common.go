package pipelines

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/partition"
	"github.com/relloyd/forklift/stream"
	"github.com/relloyd/forklift/warehouse"
)

//go:embed sql
var scripts embed.FS

const (
	nodeCheckNotRunning = "check_flow_not_running"
	nodeMonths          = "months"
	nodeCreateTable     = "create_table"
	sqlTimeLayout       = "2006-01-02 15:04:05"
)

// partitionRows is the rows computed for one partition.
type partitionRows struct {
	Key  partition.Key
	Rows *stream.Rows
}

// loadResult is the outcome of one partition load.
type loadResult struct {
	Table string        `json:"table"`
	Key   partition.Key `json:"partition"`
	Rows  int64         `json:"rows"`
}

func (l loadResult) String() string {
	return fmt.Sprintf("%v/%v: %v rows", l.Table, l.Key, l.Rows)
}

// guardNode returns the gate condition that is false while another run of pipeline is live.
func guardNode(env *Env, pipeline string) flow.Node {
	n := flow.Node{Name: nodeCheckNotRunning}
	if env.Guard == nil {
		n.Task = func(ctx context.Context, in flow.Input) (interface{}, error) {
			in.Log.Warn("no run registry: skipping the check for concurrent runs")
			return true, nil
		}
		return n
	}
	n.Task = flow.ConditionFunc(env.Guard.Condition(pipeline))
	return n
}

// monthsNode expands the months ago parameters into month partition keys.
func monthsNode(env *Env) flow.Node {
	return flow.Node{
		Name: nodeMonths,
		Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
			keys, err := monthKeys(in.Params, env.now())
			if err != nil {
				return nil, err
			}
			in.Log.Info("partitions to load: ", strings.Join(partition.Strings(keys), ", "))
			return keys, nil
		},
	}
}

// createTableNode creates database and runs the embedded DDL script for table.
func createTableNode(env *Env, script string, table string) flow.Node {
	return flow.Node{
		Name: nodeCreateTable,
		Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
			db := in.Param(ParamDatabase)
			if db != "" {
				if err := env.Warehouse.CreateDatabaseIfAbsent(ctx, db); err != nil {
					return nil, err
				}
			}
			ddl, err := embeddedDDL(env, script, db, table)
			if err != nil {
				return nil, err
			}
			return nil, env.Warehouse.Execute(ctx, ddl)
		},
	}
}

// summaryNode converges the mapped loads of upstream, failing if any load failed.
func summaryNode(upstream string) flow.Node {
	return flow.Node{
		Name:     "summary",
		Upstream: []string{upstream},
		Trigger:  flow.AllFinished,
		Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
			results, err := flow.Instances(in.Value(upstream))
			if err != nil {
				return nil, err
			}
			values, err := flow.FailOnAny(results)
			if err != nil {
				return nil, err
			}
			loads := make([]loadResult, 0, len(values))
			var total int64
			for _, v := range values {
				lr := v.(loadResult)
				loads = append(loads, lr)
				total += lr.Rows
			}
			in.Log.Info("loaded ", total, " rows into ", len(loads), " partitions")
			return loads, nil
		},
	}
}

func readScript(name string) (string, error) {
	b, err := scripts.ReadFile("sql/" + name)
	if err != nil {
		return "", fmt.Errorf("error reading script %v: %w", name, err)
	}
	return string(b), nil
}

// readScriptParam reads a script named by a run parameter, relative to the env's script directory.
func readScriptParam(env *Env, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(env.ScriptDir, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("error reading script %v: %w", path, err)
	}
	return string(b), nil
}

func embeddedDDL(env *Env, script, database, table string) (string, error) {
	s, err := readScript(script)
	if err != nil {
		return "", err
	}
	return render(s, map[string]string{"table": env.qualify(database, table)}), nil
}

var reBraces = regexp.MustCompile(`\{([a-z_]+)\}`)

// render replaces {name} in s with names[name]. Unknown names are left alone.
func render(s string, names map[string]string) string {
	return reBraces.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := names[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

var reBind = regexp.MustCompile(`(^|[^:]):([a-z_][a-z0-9_]*)`)

// bind replaces :name markers in query with placeholders of the dialect and returns the arguments in
// placeholder order.
func bind(query string, placeholder func(n int) string, args map[string]interface{}) (string, []interface{}, error) {
	var out []interface{}
	var missing []string
	sql := reBind.ReplaceAllStringFunc(query, func(m string) string {
		sub := reBind.FindStringSubmatch(m)
		v, ok := args[sub[2]]
		if !ok {
			missing = append(missing, sub[2])
			return m
		}
		out = append(out, v)
		return sub[1] + placeholder(len(out))
	})
	if len(missing) > 0 {
		return "", nil, fmt.Errorf("no value for query parameters %v", strings.Join(missing, ", "))
	}
	return sql, out, nil
}

// monthArgs returns the bounds of key formatted for text and timestamp comparisons.
func monthArgs(key partition.Key) map[string]interface{} {
	start, end := key.Bounds()
	return map[string]interface{}{
		"min_date": start.Format(sqlTimeLayout),
		"max_date": end.Format(sqlTimeLayout),
	}
}

// destination returns a warehouse destination in the run's destination database.
func destination(in flow.Input, table, ddl string) warehouse.Destination {
	return warehouse.Destination{Database: in.Param(ParamDatabase), Table: table, DDL: ddl}
}
