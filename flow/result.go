package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/stats"
)

// RunStatus is the overall status of a run.
type RunStatus uint32

const (
	StatusMissing RunStatus = iota
	StatusStarting
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusShutdown
)

func (s RunStatus) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusShutdown:
		return "shutdown by user"
	default:
		return ""
	}
}

func (s RunStatus) MarshalJSON() ([]byte, error) {
	if s > StatusShutdown {
		return nil, fmt.Errorf("unhandled RunStatus value %v in custom MarshalJSON() conversion", uint32(s))
	}
	return json.Marshal(s.String())
}

// IsFinished returns false while the run is starting or running.
func (s RunStatus) IsFinished() bool {
	return s != StatusStarting && s != StatusRunning
}

// InstanceResult is the outcome of one instance of a mapped node.
type InstanceResult struct {
	Index int         `json:"index"`
	Item  interface{} `json:"item"`
	Value interface{} `json:"-"`
	State NodeState   `json:"state"`
	Err   error       `json:"-"`
	Error string      `json:"error,omitempty"`
}

// NodeResult is the outcome of one node.
type NodeResult struct {
	Name       string           `json:"name"`
	State      NodeState        `json:"state"`
	Start      time.Time        `json:"start,omitempty"`
	End        time.Time        `json:"end,omitempty"`
	Mapped     bool             `json:"mapped"`
	Instances  []InstanceResult `json:"instances,omitempty"`
	Output     interface{}      `json:"-"`
	Err        error            `json:"-"`
	Error      string           `json:"error,omitempty"`
	SkipReason string           `json:"skipReason,omitempty"`
	// Absorbed is set on a mapped node whose failed instances were handled by a successful AllFinished
	// downstream node.
	Absorbed bool `json:"absorbed,omitempty"`
}

// FailedInstances returns the instances that failed.
func (n *NodeResult) FailedInstances() []InstanceResult {
	var retval []InstanceResult
	for _, i := range n.Instances {
		if i.State == StateFailed {
			retval = append(retval, i)
		}
	}
	return retval
}

// RunResult records one execution of a Graph.
type RunResult struct {
	RunID       string                 `json:"runId"`
	Pipeline    string                 `json:"pipeline"`
	Params      map[string]string      `json:"params"`
	Status      RunStatus              `json:"status"`
	GuardedNoOp bool                   `json:"guardedNoOp"`
	Start       time.Time              `json:"start"`
	End         time.Time              `json:"end"`
	Order       []string               `json:"order"`
	Nodes       map[string]*NodeResult `json:"nodes"`
	Stats       stats.Snapshot         `json:"stats"`
}

// Succeeded returns true if the run finished successfully, including a guarded no-op.
func (r *RunResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Err describes every failure of the run, naming the node and, for mapped nodes, the instance index
// and item. It returns nil for a successful run.
func (r *RunResult) Err() error {
	if r == nil || r.Status == StatusSucceeded {
		return nil
	}
	var all []error
	for _, name := range r.Order {
		n := r.Nodes[name]
		if n == nil || n.Absorbed {
			continue
		}
		switch {
		case n.State == StateFailed && n.Mapped && len(n.FailedInstances()) > 0:
			for _, i := range n.FailedInstances() {
				all = append(all, fmt.Errorf("node %v instance %v (item %v): %w", name, i.Index, i.Item, i.Err))
			}
		case n.State == StateFailed:
			all = append(all, fmt.Errorf("node %v: %w", name, n.Err))
		}
	}
	if len(all) == 0 {
		return fmt.Errorf("run %v of pipeline %v %v", r.RunID, r.Pipeline, r.Status)
	}
	return fmt.Errorf("run %v of pipeline %v failed: %w", r.RunID, r.Pipeline, errors.Join(all...))
}

// Summary returns one line per node for logging.
func (r *RunResult) Summary() string {
	var b strings.Builder
	for _, name := range r.Order {
		n := r.Nodes[name]
		fmt.Fprintf(&b, "%v=%v", name, n.State)
		if n.Mapped {
			fmt.Fprintf(&b, "(%v instances, %v failed)", len(n.Instances), len(n.FailedInstances()))
		}
		if n.SkipReason != "" {
			fmt.Fprintf(&b, "[%v]", n.SkipReason)
		}
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}

// Succeeded returns the values of the successful instances, in index order. It implements the
// "proceed with what succeeded" convergence policy.
func Succeeded(results []InstanceResult) []interface{} {
	retval := make([]interface{}, 0, len(results))
	for _, r := range results {
		if r.State == StateSucceeded {
			retval = append(retval, r.Value)
		}
	}
	return retval
}

// FailOnAny returns the values of all instances, or an error naming the first failed or skipped instance.
func FailOnAny(results []InstanceResult) ([]interface{}, error) {
	retval := make([]interface{}, 0, len(results))
	for _, r := range results {
		if r.State != StateSucceeded {
			err := r.Err
			if err == nil {
				err = errs.ErrUpstreamSkipped
			}
			return nil, fmt.Errorf("instance %v (item %v) %v: %w", r.Index, r.Item, r.State, err)
		}
		retval = append(retval, r.Value)
	}
	return retval, nil
}

// Instances returns the upstream value v as []InstanceResult, or an error if v did not come from a
// mapped node.
func Instances(v interface{}) ([]InstanceResult, error) {
	r, ok := v.([]InstanceResult)
	if !ok {
		return nil, errs.InvalidArgument("expected the results of a mapped node, got %T", v)
	}
	return r, nil
}
