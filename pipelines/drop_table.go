package pipelines

import (
	"context"
	"fmt"
	"regexp"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/flow"
)

const paramTable = "table"

var reIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DropTable drops a warehouse table, e.g. before a sync-table run changes its DDL.
func DropTable() Definition {
	return Definition{
		Name:        "drop-table",
		Description: "Drop a warehouse table if it exists",
		Defaults: map[string]string{
			ParamDatabase: "monitorfish",
			paramTable:    "",
		},
		Required: []string{ParamDatabase},
		Build:    buildDropTable,
	}
}

func buildDropTable(env *Env) (*flow.Graph, error) {
	g := flow.NewGraph("drop-table").
		Add(guardNode(env, "drop-table")).
		Add(flow.Node{
			Name: nodeDropTable,
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				db, table := in.Param(ParamDatabase), in.Param(paramTable)
				if !reIdentifier.MatchString(table) || (db != "" && !reIdentifier.MatchString(db)) {
					return nil, errs.InvalidArgument("bad database %q or table %q", db, table)
				}
				name := env.qualify(db, table)
				in.Log.Info("dropping table ", name)
				return nil, env.Warehouse.Execute(ctx, fmt.Sprintf("drop table if exists %v", name))
			},
		}).
		AddGate(flow.Gate{Condition: nodeCheckNotRunning, Then: []string{nodeDropTable}})
	return g, g.Validate()
}
