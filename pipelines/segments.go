package pipelines

import (
	"context"

	"github.com/relloyd/forklift/batch"
	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/partition"
	"github.com/relloyd/forklift/stream"
)

const (
	segmentsTable        = "segmented_fishing_activity"
	fishingActivityTable = "fishing_activity"
	nodePartition        = "partition"
)

// Segments assigns fleet segments to the fishing activity of one month, in batches of trips.
func Segments() Definition {
	return Definition{
		Name:        "segments",
		Description: "Compute the fleet segments of the fishing activity of a month in batches of trip ids",
		Defaults: map[string]string{
			"processing_year":  current,
			"processing_month": "1",
			"segments_year":    current,
			ParamBatchSize:     "10000",
			ParamDatabase:      "sacrois",
			ParamYearMode:      string(partition.YearCalendar),
		},
		Required: []string{"processing_year", "processing_month", "segments_year", ParamBatchSize},
		Build:    buildSegments,
	}
}

func partitionNode(env *Env, yearParamName, monthParamName string) flow.Node {
	return flow.Node{
		Name: nodePartition,
		Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
			now := env.now()
			year, err := yearParam(in.Params, yearParamName, now)
			if err != nil {
				return nil, err
			}
			month, err := monthParam(in.Params, monthParamName, now)
			if err != nil {
				return nil, err
			}
			return partition.MakeKey(year, month)
		},
	}
}

func buildSegments(env *Env) (*flow.Graph, error) {
	g := flow.NewGraph("segments").
		Add(guardNode(env, "segments")).
		Add(partitionNode(env, "processing_year", "processing_month")).
		Add(createTableNode(env, "create_segmented_fishing_activity_if_not_exists.sql", segmentsTable)).
		Add(flow.Node{
			Name:     "trip_id_ranges",
			Upstream: []string{nodePartition},
			Retry:    env.Retry,
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				size, err := positiveIntParam(in.Params, ParamBatchSize)
				if err != nil {
					return nil, err
				}
				key := in.Value(nodePartition).(partition.Key)
				q, err := segmentsQuery(env, in, "trip_ids.sql", map[string]interface{}{"partition": key.String()})
				if err != nil {
					return nil, err
				}
				rows, err := env.Warehouse.Query(ctx, q.sql, q.args...)
				if err != nil {
					return nil, err
				}
				ids, err := rows.Column("trip_id")
				if err != nil {
					return nil, err
				}
				// The ids come ordered by the warehouse collation, which also applies the range bounds.
				ranges, err := batch.ChunkOrderedKeys(ids, batch.KindAuto, size)
				if err != nil {
					return nil, err
				}
				in.Log.Info("found ", len(ids), " trips to segment in ", len(ranges), " batches of ", size)
				return ranges, nil
			},
		}).
		Add(flow.Node{
			Name:      "compute_segments",
			Upstream:  []string{"trip_id_ranges", nodePartition},
			MapOver:   "trip_id_ranges",
			Broadcast: []string{nodePartition},
			Retry:     env.Retry,
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				r := in.Item.(batch.Range)
				key := in.Value(nodePartition).(partition.Key)
				year, err := yearParam(in.Params, "segments_year", env.now())
				if err != nil {
					return nil, err
				}
				in.Log.Info("computing segments of trips ", r.Min, " to ", r.Max)
				q, err := segmentsQuery(env, in, "compute_segments.sql", map[string]interface{}{
					"partition":     key.String(),
					"segments_year": year,
					"id_min":        r.Min,
					"id_max":        r.Max,
				})
				if err != nil {
					return nil, err
				}
				return env.Warehouse.Query(ctx, q.sql, q.args...)
			},
		}).
		Add(flow.Node{
			Name:     "converge",
			Upstream: []string{"compute_segments"},
			Trigger:  flow.AllFinished,
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				results, err := flow.Instances(in.Value("compute_segments"))
				if err != nil {
					return nil, err
				}
				values, err := flow.FailOnAny(results)
				if err != nil {
					return nil, err
				}
				batches := make([]*stream.Rows, len(values))
				for idx, v := range values {
					batches[idx] = v.(*stream.Rows)
				}
				return stream.Concat(batches...)
			},
		}).
		Add(flow.Node{
			Name:     "load_segments",
			Upstream: []string{"converge", nodePartition, nodeCreateTable},
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				key := in.Value(nodePartition).(partition.Key)
				n, err := env.loader(in).Load(ctx, destination(in, segmentsTable, ""), key, in.Value("converge").(*stream.Rows))
				if err != nil {
					return nil, err
				}
				return loadResult{Table: segmentsTable, Key: key, Rows: n}, nil
			},
		}).
		AddGate(flow.Gate{Condition: nodeCheckNotRunning, Then: []string{nodePartition, nodeCreateTable}})
	return g, g.Validate()
}

type boundQuery struct {
	sql  string
	args []interface{}
}

// segmentsQuery renders a warehouse query over the fishing activity table and binds args.
func segmentsQuery(env *Env, in flow.Input, script string, args map[string]interface{}) (boundQuery, error) {
	s, err := readScript(script)
	if err != nil {
		return boundQuery{}, err
	}
	s = render(s, map[string]string{"fishing_activity": env.qualify(in.Param(ParamDatabase), fishingActivityTable)})
	sql, a, err := bind(s, env.placeholder, args)
	if err != nil {
		return boundQuery{}, err
	}
	return boundQuery{sql: sql, args: a}, nil
}
