package pipelines

import (
	"context"
	"fmt"

	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/partition"
	"github.com/relloyd/forklift/stream"
)

const (
	catchesTable = "catches"
	// catchIdFactor makes catch ids of the form YYYYMM000000000, YYYYMM000000001...
	catchIdFactor = 1_000_000_000
)

// Catches reloads the catches of the last months from the logbook database.
func Catches() Definition {
	return Definition{
		Name:        "catches",
		Description: "Reload monthly partitions of catches, including bluefin tuna catches, from the logbook database",
		Schedule:    "6 4 * * *",
		Defaults: map[string]string{
			ParamStartMonthsAgo: "1",
			ParamEndMonthsAgo:   "0",
			ParamSource:         "monitorfish_remote",
			ParamDatabase:       "monitorfish",
		},
		Required: []string{ParamStartMonthsAgo, ParamEndMonthsAgo, ParamSource},
		Build:    buildCatches,
	}
}

func buildCatches(env *Env) (*flow.Graph, error) {
	g := flow.NewGraph("catches").
		Add(guardNode(env, "catches")).
		Add(monthsNode(env)).
		Add(createTableNode(env, "create_catches_if_not_exists.sql", catchesTable)).
		Add(flow.Node{
			Name:     "extract_catches",
			Upstream: []string{nodeMonths},
			MapOver:  nodeMonths,
			Task:     extractMonth(env, "catches.sql"),
		}).
		Add(flow.Node{
			Name:     "extract_bft_catches",
			Upstream: []string{nodeMonths},
			MapOver:  nodeMonths,
			Task:     extractMonth(env, "bft_catches.sql"),
		}).
		Add(flow.Node{
			Name:     "concat",
			Upstream: []string{"extract_catches", "extract_bft_catches"},
			MapOver:  "extract_catches",
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				bft, err := flow.Instances(in.Value("extract_bft_catches"))
				if err != nil {
					return nil, err
				}
				if in.Index >= len(bft) || bft[in.Index].State != flow.StateSucceeded {
					return nil, fmt.Errorf("no bluefin tuna catches for instance %v", in.Index)
				}
				return concatCatches(in.Item.(partitionRows), bft[in.Index].Value.(partitionRows))
			},
		}).
		Add(flow.Node{
			Name:     "load_catches",
			Upstream: []string{"concat", nodeCreateTable},
			MapOver:  "concat",
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				pr := in.Item.(partitionRows)
				n, err := env.loader(in).Load(ctx, destination(in, catchesTable, ""), pr.Key, pr.Rows)
				if err != nil {
					return nil, err
				}
				return loadResult{Table: catchesTable, Key: pr.Key, Rows: n}, nil
			},
		}).
		Add(summaryNode("load_catches")).
		AddGate(flow.Gate{Condition: nodeCheckNotRunning, Then: []string{nodeMonths, nodeCreateTable}})
	return g, g.Validate()
}

// extractMonth returns a task that runs the embedded query script for the month in.Item.
func extractMonth(env *Env, script string) flow.TaskFunc {
	return func(ctx context.Context, in flow.Input) (interface{}, error) {
		key := in.Item.(partition.Key)
		src, err := env.Source(in.Param(ParamSource))
		if err != nil {
			return nil, err
		}
		q, err := readScript(script)
		if err != nil {
			return nil, err
		}
		sql, args, err := bind(q, src.Placeholder, monthArgs(key))
		if err != nil {
			return nil, err
		}
		rows, err := src.Query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		in.Log.Info("extracted ", rows.Len(), " rows of month ", key)
		return partitionRows{Key: key, Rows: rows}, nil
	}
}

// concatCatches merges both kinds of catches of a month and numbers them.
func concatCatches(catches, bft partitionRows) (partitionRows, error) {
	all, err := stream.Concat(catches.Rows, bft.Rows)
	if err != nil {
		return partitionRows{}, err
	}
	prefix := int64(catchIdFactor) * int64(catches.Key.Year()*100+catches.Key.Month())
	i := int64(0)
	err = all.AddColumn("id", func([]interface{}) interface{} {
		id := prefix + i
		i++
		return id
	})
	if err != nil {
		return partitionRows{}, err
	}
	return partitionRows{Key: catches.Key, Rows: all}, nil
}
