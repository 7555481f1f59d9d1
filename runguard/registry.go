//go:generate mockgen -source=registry.go -destination=mocks/registry.go -package=mocks

package runguard

import (
	"context"
	"time"

	"github.com/relloyd/forklift/constants"
)

// RunState is the registry state of one pipeline execution.
type RunState string

const (
	StateRunning   RunState = constants.RunStateRunning
	StateSucceeded RunState = constants.RunStateSucceeded
	StateFailed    RunState = constants.RunStateFailed
	StateCancelled RunState = constants.RunStateCancelled
)

// IsTerminal returns true for every state except running.
func (s RunState) IsTerminal() bool {
	return s != StateRunning
}

// Run is one execution of a pipeline as seen by a registry.
type Run struct {
	ID         string    `json:"id"`
	PipelineID string    `json:"pipelineId"`
	State      RunState  `json:"state"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end,omitempty"`
}

// RunRegistry lists the executions of a pipeline.
// With no states supplied every run is returned.
type RunRegistry interface {
	ListRuns(ctx context.Context, pipelineID string, states ...RunState) ([]Run, error)
}

// RunRecorder writes executions to a registry.
type RunRecorder interface {
	RecordStart(ctx context.Context, r Run) error
	RecordEnd(ctx context.Context, runID string, state RunState, end time.Time) error
}

// Registry is a registry that can be read and written.
type Registry interface {
	RunRegistry
	RunRecorder
}

func wanted(s RunState, states []RunState) bool {
	if len(states) == 0 {
		return true
	}
	for _, w := range states {
		if s == w {
			return true
		}
	}
	return false
}
