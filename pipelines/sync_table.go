package pipelines

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/partition"
	"github.com/relloyd/forklift/stream"
)

const (
	paramSourceTable  = "source_table"
	paramQueryPath    = "query_path"
	paramDestTable    = "destination_table"
	paramDDLPath      = "ddl_script_path"
	paramOrderBy      = "order_by"
	nodeExtract       = "extract"
	nodeCreateDB      = "create_database"
	nodeDropTable     = "drop_table"
	nodeHasDDL        = "has_ddl_script"
	nodeHasNoDDL      = "has_no_ddl_script"
	ruleHasDDLScript  = `{"!!": [{"var": "ddl_script_path"}]}`
	ruleNoDDLScript   = `{"!": [{"var": "ddl_script_path"}]}`
	defaultSyncSource = "monitorfish_proxy"
)

var reColumnList = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\s*,\s*[A-Za-z_][A-Za-z0-9_]*)*$`)

// SyncTable copies a whole source table, or the result of a query script, to the warehouse.
// The first clock is the default schedule; the others copy more tables.
func SyncTable() Definition {
	return Definition{
		Name:        "sync-table",
		Description: "Replace a warehouse table with the content of a source table or query",
		Schedule:    "25 4 * * *",
		Clocks: []Clock{
			{
				Schedule: "30 4 * * *",
				Params: map[string]string{
					paramSourceTable: "control_objectives",
					paramDestTable:   "control_objectives",
					paramDDLPath:     "",
					paramOrderBy:     "year",
				},
			},
			{
				Schedule: "35 * * * *",
				Params: map[string]string{
					ParamSource:      "monitorenv_proxy",
					paramSourceTable: "analytics_actions",
					ParamDatabase:    "monitorenv",
					paramDestTable:   "analytics_actions",
					paramDDLPath:     "monitorenv/create_analytics_actions.sql",
				},
			},
		},
		Defaults: map[string]string{
			ParamSource:      defaultSyncSource,
			paramSourceTable: "analytics_controls_full_data",
			paramQueryPath:   "",
			ParamDatabase:    "monitorfish",
			paramDestTable:   "analytics_controls_full_data",
			paramDDLPath:     "monitorfish/create_analytics_controls_full_data.sql",
			paramOrderBy:     "",
			ParamYearMode:    string(partition.YearCalendar),
		},
		Required: []string{ParamSource, ParamDatabase, paramDestTable},
		Build:    buildSyncTable,
	}
}

func buildSyncTable(env *Env) (*flow.Graph, error) {
	g := flow.NewGraph("sync-table").
		Add(guardNode(env, "sync-table")).
		Add(flow.Node{Name: nodeHasDDL, Task: flow.JSONLogicCondition(ruleHasDDLScript)}).
		Add(flow.Node{Name: nodeHasNoDDL, Task: flow.JSONLogicCondition(ruleNoDDLScript)}).
		Add(flow.Node{
			Name: nodeExtract,
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				return extractTable(ctx, env, in)
			},
		}).
		Add(flow.Node{
			Name: nodeCreateDB,
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				return nil, env.Warehouse.CreateDatabaseIfAbsent(ctx, in.Param(ParamDatabase))
			},
		}).
		Add(flow.Node{
			Name:     nodeDropTable,
			Upstream: []string{nodeCreateDB, nodeExtract},
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				table := env.qualify(in.Param(ParamDatabase), in.Param(paramDestTable))
				in.Log.Info("dropping table ", table)
				return nil, env.Warehouse.Execute(ctx, fmt.Sprintf("drop table if exists %v", table))
			},
		}).
		Add(flow.Node{
			Name:     "load_with_ddl",
			Upstream: []string{nodeExtract, nodeDropTable},
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				ddl, err := readScriptParam(env, in.Param(paramDDLPath))
				if err != nil {
					return nil, err
				}
				ddl = render(ddl, map[string]string{"table": env.qualify(in.Param(ParamDatabase), in.Param(paramDestTable))})
				return loadTable(ctx, env, in, ddl)
			},
		}).
		Add(flow.Node{
			Name:     "load_from_rows",
			Upstream: []string{nodeExtract, nodeDropTable},
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				return loadTable(ctx, env, in, "")
			},
		}).
		AddGate(flow.Gate{Condition: nodeCheckNotRunning, Then: []string{nodeHasDDL, nodeHasNoDDL, nodeExtract, nodeCreateDB}}).
		AddGate(flow.Gate{Condition: nodeHasDDL, Then: []string{"load_with_ddl"}}).
		AddGate(flow.Gate{Condition: nodeHasNoDDL, Then: []string{"load_from_rows"}})
	return g, g.Validate()
}

// extractTable reads the query script when one is given, the source table otherwise.
func extractTable(ctx context.Context, env *Env, in flow.Input) (*stream.Rows, error) {
	src, err := env.Source(in.Param(ParamSource))
	if err != nil {
		return nil, err
	}
	if path := in.Param(paramQueryPath); path != "" {
		q, err := readScriptParam(env, path)
		if err != nil {
			return nil, err
		}
		return src.Query(ctx, q)
	}
	table := in.Param(paramSourceTable)
	orderBy := strings.TrimSpace(in.Param(paramOrderBy))
	if orderBy == "" {
		return src.Table(ctx, table)
	}
	if !reTableNameParam.MatchString(table) || !reColumnList.MatchString(orderBy) {
		return nil, errs.InvalidArgument("bad source table %q or order by %q", table, orderBy)
	}
	return src.Query(ctx, fmt.Sprintf("select * from %v order by %v", table, orderBy))
}

var reTableNameParam = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// loadTable loads the extracted rows as the single partition of the current year.
// Tables created from the rows get the partition column; a DDL script does not need to declare one.
func loadTable(ctx context.Context, env *Env, in flow.Input, ddl string) (interface{}, error) {
	mode, err := partition.ParseYearMode(in.Param(ParamYearMode))
	if err != nil {
		return nil, err
	}
	key, err := partition.NewYearKey(partition.YearOf(env.now(), mode))
	if err != nil {
		return nil, err
	}
	table := in.Param(paramDestTable)
	dest := destination(in, table, ddl)
	if ddl != "" { // the table was dropped so every row is in the partition and the DDL needs no partition column
		dest.PartitionExpr = fmt.Sprintf("'%v'", key)
	}
	n, err := env.loader(in).Load(ctx, dest, key, in.Value(nodeExtract).(*stream.Rows))
	if err != nil {
		return nil, err
	}
	return loadResult{Table: table, Key: key, Rows: n}, nil
}
