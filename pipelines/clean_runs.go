package pipelines

import (
	"context"
	"strings"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/flow"
	"github.com/relloyd/forklift/helper"
)

const paramPipelines = "pipelines"

// sweepResult is the number of stale runs cancelled for one pipeline.
type sweepResult struct {
	Pipeline  string `json:"pipeline"`
	Cancelled int    `json:"cancelled"`
}

// CleanRuns cancels the runs left in the running state by processes that died.
func CleanRuns() Definition {
	return Definition{
		Name:        "clean-runs",
		Description: "Mark runs that have been running for longer than the staleness ceiling as cancelled",
		Schedule:    "8,18,28,38,48,58 * * * *",
		Defaults: map[string]string{
			paramPipelines: "", // every registered pipeline
		},
		Build: buildCleanRuns,
	}
}

func buildCleanRuns(env *Env) (*flow.Graph, error) {
	g := flow.NewGraph("clean-runs").
		Add(flow.Node{
			Name: paramPipelines,
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				if env.Guard == nil {
					return nil, errs.InvalidArgument("no run registry is configured")
				}
				names := helper.CsvToStringSliceTrimSpaces(in.Param(paramPipelines))
				if len(names) == 0 {
					names = env.Pipelines
				}
				in.Log.Info("sweeping stale runs of ", strings.Join(names, ", "))
				return names, nil
			},
		}).
		Add(flow.Node{
			Name:     "sweep",
			Upstream: []string{paramPipelines},
			MapOver:  paramPipelines,
			Task: func(ctx context.Context, in flow.Input) (interface{}, error) {
				name := in.Item.(string)
				n, err := env.Guard.SweepStale(ctx, name)
				if err != nil {
					return nil, err
				}
				return sweepResult{Pipeline: name, Cancelled: n}, nil
			},
		})
	return g, g.Validate()
}
