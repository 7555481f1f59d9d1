// Package runguard stops two executions of the same pipeline from overlapping.
//
// The check is advisory: it reads the registry once and races with the caller's first write. Two
// executions that both pass the check still leave correct data because every partition load deletes
// then inserts.
package runguard

import (
	"context"
	"fmt"
	"time"

	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/logger"
)

// Guard answers whether a pipeline may start.
type Guard struct {
	Log      logger.Logger
	Registry RunRegistry
	// StalenessCeiling is the age after which a running execution is ignored, as it must have been
	// stopped by the wall-clock ceiling.
	StalenessCeiling time.Duration
	Now              func() time.Time
}

// NewGuard returns a Guard with the default staleness ceiling.
func NewGuard(log logger.Logger, registry RunRegistry) *Guard {
	return &Guard{
		Log:              log,
		Registry:         registry,
		StalenessCeiling: constants.MaxRunMinutes * time.Minute,
		Now:              time.Now,
	}
}

func (g *Guard) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func (g *Guard) isStale(r Run) bool {
	return g.StalenessCeiling > 0 && g.now().Sub(r.Start) > g.StalenessCeiling
}

// IsSafeToRun returns false if another execution of pipelineID is running and is younger than the
// staleness ceiling. The execution with id selfRunID is ignored.
func (g *Guard) IsSafeToRun(ctx context.Context, pipelineID string, selfRunID string) (bool, error) {
	runs, err := g.Registry.ListRuns(ctx, pipelineID, StateRunning)
	if err != nil {
		return false, fmt.Errorf("error listing runs of pipeline %v: %w", pipelineID, err)
	}
	for _, r := range runs {
		if r.ID == selfRunID || r.State != StateRunning {
			continue
		}
		if g.isStale(r) {
			g.Log.Debug("ignoring stale run ", r.ID, " of pipeline ", pipelineID, " started at ", r.Start)
			continue
		}
		g.Log.Info("pipeline ", pipelineID, " is already running with id ", r.ID)
		return false, nil
	}
	return true, nil
}

// SweepStale marks running executions of pipelineID older than the staleness ceiling as cancelled.
// The registry must also be a RunRecorder. It returns the number of runs swept.
func (g *Guard) SweepStale(ctx context.Context, pipelineID string) (int, error) {
	rec, ok := g.Registry.(RunRecorder)
	if !ok {
		return 0, fmt.Errorf("run registry %T cannot record run states", g.Registry)
	}
	runs, err := g.Registry.ListRuns(ctx, pipelineID, StateRunning)
	if err != nil {
		return 0, fmt.Errorf("error listing runs of pipeline %v: %w", pipelineID, err)
	}
	n := 0
	for _, r := range runs {
		if !g.isStale(r) {
			continue
		}
		if err = rec.RecordEnd(ctx, r.ID, StateCancelled, g.now()); err != nil {
			return n, fmt.Errorf("error cancelling stale run %v: %w", r.ID, err)
		}
		g.Log.Warn("cancelled stale run ", r.ID, " of pipeline ", pipelineID, " started at ", r.Start)
		n++
	}
	return n, nil
}

// Condition returns a gate condition for pipelineID. It yields true when the run with id runID is
// alone.
func (g *Guard) Condition(pipelineID string) func(ctx context.Context, runID string) (bool, error) {
	return func(ctx context.Context, runID string) (bool, error) {
		return g.IsSafeToRun(ctx, pipelineID, runID)
	}
}
