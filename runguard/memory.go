package runguard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu   sync.RWMutex
	runs map[string]Run
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{runs: make(map[string]Run)}
}

func (m *MemoryRegistry) ListRuns(ctx context.Context, pipelineID string, states ...RunState) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	retval := make([]Run, 0)
	for _, r := range m.runs {
		if r.PipelineID == pipelineID && wanted(r.State, states) {
			retval = append(retval, r)
		}
	}
	sort.Slice(retval, func(i, j int) bool { return retval[i].Start.Before(retval[j].Start) })
	return retval, nil
}

func (m *MemoryRegistry) RecordStart(ctx context.Context, r Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; ok {
		return fmt.Errorf("run %v is already registered", r.ID)
	}
	if r.State == "" {
		r.State = StateRunning
	}
	m.runs[r.ID] = r
	return nil
}

func (m *MemoryRegistry) RecordEnd(ctx context.Context, runID string, state RunState, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %v is not registered", runID)
	}
	r.State = state
	r.End = end
	m.runs[runID] = r
	return nil
}

// Get returns the run with id runID.
func (m *MemoryRegistry) Get(runID string) (Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	return r, ok
}
