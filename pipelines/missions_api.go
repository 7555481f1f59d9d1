package pipelines

import (
	"context"
	"fmt"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/sources"
)

const (
	paramReportType = "report_type"
	missionsPath    = "analytics/v1/"
)

// MissionsAPI fetches the analytics of the missions of the last months from the reporting API.
func MissionsAPI() Definition {
	return Definition{
		Name:        "missions-api",
		Description: "Load the analytics of the missions of the last months from the reporting API",
		Schedule:    "15 3 * * *",
		Clocks: []Clock{
			{Schedule: "20 3 * * *", Params: map[string]string{paramReportType: "aem"}},
		},
		Defaults: map[string]string{
			ParamStartMonthsAgo: "3",
			ParamEndMonthsAgo:   "0",
			ParamSource:         "monitorenv_remote",
			ParamDatabase:       "rapportnav",
			ParamBatchSize:      "100",
			paramReportType:     "patrol",
		},
		Required: []string{ParamStartMonthsAgo, ParamEndMonthsAgo, ParamSource, ParamBatchSize, paramReportType},
		Build:    buildMissionsAPI,
	}
}

func buildMissionsAPI(env *Env) (*flow.Graph, error) {
	g := flow.NewGraph("missions-api").
		Add(guardNode(env, "missions-api")).
		Add(monthsNode(env)).
		Add(flow.Node{
			Name:     "extract_mission_ids",
			Upstream: []string{nodeMonths},
			MapOver:  nodeMonths,
			Task:     extractMonth(env, "missions.sql"),
		}).
		Add(flow.Node{
			Name:     "fetch_analytics",
			Upstream: []string{"extract_mission_ids"},
			MapOver:  "extract_mission_ids",
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				return fetchAnalytics(ctx, env, in)
			},
		}).
		Add(flow.Node{
			Name:     "load_analytics",
			Upstream: []string{"fetch_analytics"},
			MapOver:  "fetch_analytics",
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				pr := in.Item.(partitionRows)
				table := in.Param(paramReportType)
				n, err := env.loader(in).Load(ctx, destination(in, table, ""), pr.Key, pr.Rows)
				if err != nil {
					return nil, err
				}
				return loadResult{Table: table, Key: pr.Key, Rows: n}, nil
			},
		}).
		Add(summaryNode("load_analytics")).
		AddGate(flow.Gate{Condition: nodeCheckNotRunning, Then: []string{nodeMonths}})
	return g, g.Validate()
}

type missionsRequest struct {
	MissionIds []interface{} `json:"missionIds"`
}

// fetchAnalytics posts the mission ids of a month to the API in chunks and flattens the results.
func fetchAnalytics(ctx context.Context, env *Env, in flow.Input) (partitionRows, error) {
	if env.API == nil {
		return partitionRows{}, errs.InvalidArgument("no API is configured")
	}
	size, err := positiveIntParam(in.Params, ParamBatchSize)
	if err != nil {
		return partitionRows{}, err
	}
	pr := in.Item.(partitionRows)
	ids, err := pr.Rows.Column("id")
	if err != nil {
		return partitionRows{}, err
	}
	path := missionsPath + in.Param(paramReportType)
	var records []map[string]interface{}
	for _, chunk := range chunk(ids, size) {
		res, err := env.API.Results(ctx, path, missionsRequest{MissionIds: chunk})
		if err != nil {
			return partitionRows{}, fmt.Errorf("error fetching %v missions of %v: %w", len(chunk), pr.Key, err)
		}
		for _, r := range res {
			records = append(records, controlUnitIds(r))
		}
	}
	in.Log.Info("fetched ", len(records), " ", in.Param(paramReportType), " records for ", len(ids), " missions of ", pr.Key)
	return partitionRows{Key: pr.Key, Rows: sources.FlattenRecords(records)}, nil
}

// chunk splits ids into slices of at most size elements.
func chunk(ids []interface{}, size int) [][]interface{} {
	var retval [][]interface{}
	for len(ids) > 0 {
		n := size
		if len(ids) < n {
			n = len(ids)
		}
		retval = append(retval, ids[:n])
		ids = ids[n:]
	}
	return retval
}

// controlUnitIds replaces the controlUnits objects of a record by the list of their ids.
func controlUnitIds(r map[string]interface{}) map[string]interface{} {
	units, ok := r["controlUnits"].([]interface{})
	if !ok {
		return r
	}
	ids := make([]interface{}, 0, len(units))
	for _, u := range units {
		if m, ok := u.(map[string]interface{}); ok {
			ids = append(ids, m["id"])
		}
	}
	delete(r, "controlUnits")
	r["controlUnitsIds"] = ids
	return r
}
