package flow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/runguard"
	"github.com/relloyd/forklift/stats"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Executor runs graphs. Nodes start as soon as their dependencies are terminal; every task body,
// mapped instances included, takes a slot from one pool of PoolSize.
type Executor struct {
	Log            logger.Logger
	PoolSize       int
	MaxRunDuration time.Duration        // wall-clock ceiling of a run; 0 disables it
	Recorder       runguard.RunRecorder // optional; receives the start and end of every run
	StatsOptions   []func(*stats.RunStats)
}

// NewExecutor returns an Executor with the default pool size and run ceiling.
func NewExecutor(log logger.Logger) *Executor {
	return &Executor{
		Log:            log,
		PoolSize:       constants.DefaultWorkerPoolSize,
		MaxRunDuration: constants.MaxRunMinutes * time.Minute,
	}
}

// Run executes g under a new run id.
func (e *Executor) Run(ctx context.Context, g *Graph, params map[string]string) (*RunResult, error) {
	return e.RunWith(ctx, xid.New().String(), nil, g, params)
}

// RunWith executes g under runID, saving progress to st (created if nil).
// The error is nil only if the run succeeded, a guarded no-op included. A non-nil RunResult is returned
// whenever the graph was valid and the run was recorded.
func (e *Executor) RunWith(ctx context.Context, runID string, st *stats.RunStats, g *Graph, params map[string]string) (*RunResult, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	order, _ := g.TopologicalOrder()
	log := e.Log.WithField("pipeline", g.Name).WithField("run", runID)
	if st == nil {
		st = stats.NewRunStats(log, runID, g.Name, e.StatsOptions...)
	}
	p := make(map[string]string, len(params))
	for k, v := range params {
		p[k] = v
	}
	res := &RunResult{
		RunID:    runID,
		Pipeline: g.Name,
		Params:   p,
		Status:   StatusRunning,
		Start:    time.Now(),
		Order:    order,
		Nodes:    make(map[string]*NodeResult, len(order)),
	}
	if e.Recorder != nil {
		err := e.Recorder.RecordStart(ctx, runguard.Run{ID: runID, PipelineID: g.Name, State: runguard.StateRunning, Start: res.Start})
		if err != nil {
			return nil, fmt.Errorf("error recording start of run %v: %w", runID, err)
		}
	}
	stats.RunStarted(g.Name)
	log.Info("pipeline ", g.Name, " is running")
	var runCtx context.Context
	var cancel context.CancelFunc
	if e.MaxRunDuration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.MaxRunDuration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	poolSize := e.PoolSize
	if poolSize <= 0 {
		poolSize = constants.DefaultWorkerPoolSize
	}
	r := &run{
		g:       g,
		id:      runID,
		params:  p,
		log:     log,
		stats:   st,
		sem:     semaphore.NewWeighted(int64(poolSize)),
		results: res.Nodes,
		done:    make(map[string]chan struct{}, len(order)),
		skip:    make(map[string]error),
	}
	for _, n := range g.Nodes() {
		r.done[n.Name] = make(chan struct{})
	}
	st.StartDumping()
	r.execute(runCtx)
	st.StopDumping()
	res.End = time.Now()
	res.GuardedNoOp = r.guarded && !r.didWork()
	res.Status = r.status()
	if res.Status != StatusSucceeded && errors.Is(ctx.Err(), context.Canceled) { // if the caller stopped the run...
		res.Status = StatusShutdown
	}
	res.Stats = st.GetStats()
	stats.RunFinished(g.Name, res.Status.String())
	if e.Recorder != nil {
		state := runguard.StateFailed
		switch res.Status {
		case StatusSucceeded:
			state = runguard.StateSucceeded
		case StatusShutdown:
			state = runguard.StateCancelled
		}
		if err := e.Recorder.RecordEnd(context.Background(), runID, state, res.End); err != nil {
			log.Warn("error recording end of run: ", err)
		}
	}
	err := res.Err()
	switch {
	case err != nil:
		log.Error("pipeline ", g.Name, " failed: ", err)
	case res.GuardedNoOp:
		log.Info("pipeline ", g.Name, " complete: guarded no-op: ", res.Summary())
	default:
		log.Info("pipeline ", g.Name, " complete: ", res.Summary())
	}
	return res, err
}

// run is the state of one execution.
type run struct {
	g       *Graph
	id      string
	params  map[string]string
	log     logger.Logger
	stats   *stats.RunStats
	sem     *semaphore.Weighted
	mu      sync.Mutex
	results map[string]*NodeResult
	done    map[string]chan struct{} // closed when the node is terminal
	skip    map[string]error         // nodes skipped by a gate
	guarded bool
}

func (r *run) execute(ctx context.Context) {
	var wg sync.WaitGroup
	for _, n := range r.g.Nodes() {
		wg.Add(1)
		go func(n *Node) {
			defer wg.Done()
			defer close(r.done[n.Name])
			r.runNode(ctx, n)
		}(n)
	}
	wg.Wait()
}

func (r *run) result(name string) *NodeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[name]
}

func (r *run) skipReason(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skip[name]
}

func (r *run) isCondition(name string) bool {
	for _, gate := range r.g.Gates() {
		if gate.Condition == name {
			return true
		}
	}
	return false
}

// closeGates marks the targets of every gate on node name, and everything downstream, as skipped.
func (r *run) closeGates(name string, reason error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, gate := range r.g.Gates() {
		if gate.Condition != name {
			continue
		}
		for n := range r.g.descendants(gate.Then) {
			if _, ok := r.skip[n]; !ok {
				r.skip[n] = reason
			}
		}
		if errors.Is(reason, errs.ErrGuardedNoOp) {
			r.guarded = true
		}
	}
}

func (r *run) runNode(ctx context.Context, n *Node) {
	deps := r.g.dependencies(n.Name)
	for _, d := range deps {
		<-r.done[d]
	}
	log := r.log.WithField("node", n.Name)
	m := newStateMachine()
	nr := &NodeResult{Name: n.Name, Mapped: n.IsMapped(), State: StatePending}
	defer func() {
		r.mu.Lock()
		r.results[n.Name] = nr
		r.mu.Unlock()
		r.stats.NodeFinished(n.Name, string(nr.State), len(nr.Instances), len(nr.FailedInstances()), nr.Err)
	}()
	skipWith := func(reason error) {
		nr.State = transition(m, eventSkip)
		nr.Err = reason
		nr.SkipReason = reason.Error()
		log.Info(n.Name, " skipped: ", reason)
		if r.isCondition(n.Name) {
			r.closeGates(n.Name, fmt.Errorf("%w: gate condition %v was skipped", errs.ErrUpstreamSkipped, n.Name))
		}
	}
	// Gates win over trigger rules.
	if reason := r.skipReason(n.Name); reason != nil {
		skipWith(reason)
		return
	}
	if n.Trigger == AllSucceeded {
		for _, d := range deps {
			ur := r.result(d)
			if d == n.MapOver && ur.Mapped && ur.State == StateFailed && len(ur.FailedInstances()) > 0 {
				continue // paired instance by instance
			}
			if ur.State != StateSucceeded {
				skipWith(fmt.Errorf("%w: %v is %v", errs.ErrUpstreamSkipped, d, ur.State))
				return
			}
		}
	}
	if n.Trigger == AllFinished {
		for _, d := range deps {
			// Only a closed gate may leave the upstream of a convergence skipped.
			if ur := r.result(d); ur.State == StateSkipped && !errors.Is(ur.Err, errs.ErrGuardedNoOp) {
				skipWith(fmt.Errorf("%w: %v is %v", errs.ErrUpstreamSkipped, d, ur.State))
				return
			}
		}
	}
	nr.State = transition(m, eventStart)
	nr.Start = time.Now()
	r.stats.NodeStarted(n.Name)
	log.Info(n.Name, " is running")
	in := r.input(n, log)
	var err error
	if n.IsMapped() {
		nr.Instances, err = r.runInstances(ctx, n, in)
		if err == nil {
			nr.Output = nr.Instances
			if failed := nr.FailedInstances(); len(failed) > 0 {
				err = fmt.Errorf("%v of %v instances failed, first: instance %v (item %v): %w",
					len(failed), len(nr.Instances), failed[0].Index, failed[0].Item, failed[0].Err)
			}
		}
	} else {
		nr.Output, err = r.call(ctx, n, in)
		if err == nil && r.isCondition(n.Name) {
			if _, ok := nr.Output.(bool); !ok {
				err = errs.InvalidArgument("gate condition %v returned %T, not bool", n.Name, nr.Output)
			}
		}
	}
	nr.End = time.Now()
	if err != nil {
		nr.State = transition(m, eventFail)
		nr.Err = err
		nr.Error = err.Error()
		log.Error(n.Name, " failed: ", err)
		if r.isCondition(n.Name) {
			r.closeGates(n.Name, fmt.Errorf("%w: gate condition %v failed", errs.ErrUpstreamSkipped, n.Name))
		}
		return
	}
	nr.State = transition(m, eventSucceed)
	if r.isCondition(n.Name) && !nr.Output.(bool) {
		log.Info("gate ", n.Name, " is closed")
		r.closeGates(n.Name, fmt.Errorf("%w: gate %v is closed", errs.ErrGuardedNoOp, n.Name))
	}
	log.Info(n.Name, " complete")
}

// input collects the upstream values of n.
func (r *run) input(n *Node, log logger.Logger) Input {
	in := Input{
		RunID:     r.id,
		Pipeline:  r.g.Name,
		Node:      n.Name,
		Params:    r.params,
		Upstream:  make(map[string]interface{}),
		Broadcast: make(map[string]interface{}),
		Index:     -1,
		Log:       log,
		Stats:     r.stats,
	}
	for _, d := range r.g.dependencies(n.Name) {
		ur := r.result(d)
		if ur.Mapped {
			in.Upstream[d] = append([]InstanceResult(nil), ur.Instances...)
		} else {
			in.Upstream[d] = ur.Output
		}
	}
	for _, b := range n.Broadcast {
		if strings.HasPrefix(b, "$") {
			in.Broadcast[b] = r.params[strings.TrimPrefix(b, "$")]
		} else {
			in.Broadcast[b] = in.Upstream[b]
		}
	}
	return in
}

// call runs the task body of n under the pool, the retry policy and panic recovery.
func (r *run) call(ctx context.Context, n *Node, in Input) (out interface{}, err error) {
	if err = r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)
	err = n.Retry.Do(ctx, func(ctx context.Context) error {
		var e error
		out, e = safeCall(ctx, n.Task, in)
		return e
	})
	return out, err
}

// safeCall turns a panic in fn into an error.
func safeCall(ctx context.Context, fn TaskFunc, in Input) (out interface{}, err error) {
	defer RecoverToError(&err)
	return fn(ctx, in)
}

type mapSource struct {
	item   interface{} // the value handed to the instance
	origin interface{} // the element the first mapped node in the chain was mapped over
	state  NodeState
	err    error
}

// runInstances instantiates n once per element of its MapOver upstream and waits for every instance.
func (r *run) runInstances(ctx context.Context, n *Node, in Input) ([]InstanceResult, error) {
	ur := r.result(n.MapOver)
	var sources []mapSource
	if ur.Mapped { // if we pair up with the instances of a mapped node...
		for _, i := range ur.Instances {
			sources = append(sources, mapSource{item: i.Value, origin: i.Item, state: i.State, err: i.Err})
		}
	} else if ur.Output != nil {
		v := reflect.ValueOf(ur.Output)
		if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			return nil, errs.InvalidArgument("node %v maps over %v whose output %T is not a slice", n.Name, n.MapOver, ur.Output)
		}
		for i := 0; i < v.Len(); i++ {
			item := v.Index(i).Interface()
			sources = append(sources, mapSource{item: item, origin: item, state: StateSucceeded})
		}
	}
	in.Log.Debug(n.Name, " mapped over ", len(sources), " items")
	results := make([]InstanceResult, len(sources))
	var eg errgroup.Group
	for idx, s := range sources {
		idx, s := idx, s
		eg.Go(func() error {
			results[idx] = r.runInstance(ctx, n, in, idx, s)
			return nil // instances fail independently
		})
	}
	_ = eg.Wait()
	return results, nil
}

func (r *run) runInstance(ctx context.Context, n *Node, in Input, idx int, s mapSource) InstanceResult {
	m := newStateMachine()
	ir := InstanceResult{Index: idx, Item: s.origin}
	if s.state != StateSucceeded && n.Trigger != AllFinished { // if the paired upstream instance did not succeed...
		ir.State = transition(m, eventSkip)
		ir.Err = fmt.Errorf("%w: instance %v of %v is %v", errs.ErrUpstreamSkipped, idx, n.MapOver, s.state)
		ir.Error = ir.Err.Error()
		return ir
	}
	transition(m, eventStart)
	in.Index = idx
	in.Item = s.item
	in.ItemErr = s.err
	in.Log = in.Log.WithField("instance", idx)
	out, err := r.call(ctx, n, in)
	if err != nil {
		ir.State = transition(m, eventFail)
		ir.Err = err
		ir.Error = err.Error()
		in.Log.Warn(n.Name, " instance ", idx, " (item ", s.origin, ") failed: ", err)
		return ir
	}
	ir.State = transition(m, eventSucceed)
	ir.Value = out
	return ir
}

// didWork returns true if any node other than a gate condition succeeded. A gate that only closes one
// branch of a graph does not make the run a no-op.
func (r *run) didWork() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.g.Nodes() {
		if !r.isCondition(n.Name) && r.results[n.Name].State == StateSucceeded {
			return true
		}
	}
	return false
}

// status derives the run status from the node results.
// Failed instances of a mapped node are absorbed by a successful AllFinished node downstream of it.
func (r *run) status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.g.Nodes() {
		nr := r.results[n.Name]
		if nr.State != StateFailed || !nr.Mapped || len(nr.FailedInstances()) == 0 {
			continue
		}
		for _, c := range r.g.Nodes() {
			if c.Trigger == AllFinished && contains(c.Upstream, n.Name) && r.results[c.Name].State == StateSucceeded {
				nr.Absorbed = true
				break
			}
		}
	}
	for _, n := range r.g.Nodes() {
		nr := r.results[n.Name]
		switch nr.State {
		case StateSucceeded:
		case StateFailed:
			if !nr.Absorbed {
				return StatusFailed
			}
		case StateSkipped:
			if !errors.Is(nr.Err, errs.ErrGuardedNoOp) {
				return StatusFailed
			}
		default:
			return StatusFailed
		}
	}
	return StatusSucceeded
}
