package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/forklift/constants"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/partition"
)

type StatsFetcher interface {
	GetStats() Snapshot
}

var DefaultStatsDumpFrequencySeconds = constants.StatsCaptureFrequencySeconds // may be overridden by options to NewRunStats!

// RunStats collects the node and partition outcomes of one pipeline run.
// It implements warehouse.Observer so that loaders report every partition they write.
type RunStats struct {
	RunID               string
	Pipeline            string
	ticker              *time.Ticker
	tickerDone          chan struct{}
	tickerIsRunningFlag int32
	tickerFrequency     int
	mu                  sync.Mutex
	log                 logger.Logger
	mapNodeStats        *ordered_map.OrderedMap // node name => *NodeStats
	mapPartitionStats   *ordered_map.OrderedMap // table/partition => *PartitionStats
}

// Snapshot is a copy of RunStats at a point in time.
type Snapshot struct {
	RunID      string           `json:"runId"`
	Pipeline   string           `json:"pipeline"`
	Nodes      []NodeStats      `json:"nodes"`
	Partitions []PartitionStats `json:"partitions"`
	TotalRows  int64            `json:"totalRows"`
}

// SetStatsDumpFrequency returns an option for NewRunStats. Zero disables dumping.
func SetStatsDumpFrequency(seconds int) func(t *RunStats) {
	return func(t *RunStats) {
		t.tickerFrequency = seconds
	}
}

// NewRunStats creates stats for run runID of pipeline.
func NewRunStats(log logger.Logger, runID string, pipeline string, options ...func(t *RunStats)) *RunStats {
	t := &RunStats{
		RunID:             runID,
		Pipeline:          pipeline,
		log:               log,
		tickerFrequency:   DefaultStatsDumpFrequencySeconds,
		tickerDone:        make(chan struct{}),
		mapNodeStats:      ordered_map.NewOrderedMap(),
		mapPartitionStats: ordered_map.NewOrderedMap(),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// NodeStarted records the start of a node.
func (t *RunStats) NodeStarted(node string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mapNodeStats.Set(node, &NodeStats{NodeName: node, StartTime: time.Now()})
}

// NodeFinished records the final state of a node and counts it in the metrics.
func (t *RunStats) NodeFinished(node string, state string, instances int, failed int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ns *NodeStats
	if v, ok := t.mapNodeStats.Get(node); ok {
		ns = v.(*NodeStats)
	} else { // else the node never started, e.g. it was skipped...
		ns = &NodeStats{NodeName: node}
		t.mapNodeStats.Set(node, ns)
	}
	ns.EndTime = time.Now()
	ns.StatusText = state
	ns.Instances = instances
	ns.FailedInstances = failed
	if err != nil {
		ns.Error = err.Error()
	}
	nodeRunsTotal.WithLabelValues(t.Pipeline, node, state).Inc()
}

// PartitionLoaded records the outcome of a partition load.
func (t *RunStats) PartitionLoaded(table string, key partition.Key, rows int64, elapsed time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := fmt.Sprintf("%v/%v", table, key)
	var ps *PartitionStats
	if v, ok := t.mapPartitionStats.Get(k); ok {
		ps = v.(*PartitionStats)
	} else {
		ps = &PartitionStats{Table: table, Partition: key.String()}
		t.mapPartitionStats.Set(k, ps)
	}
	ps.Loads++
	ps.Rows = rows
	ps.ElapsedMs = elapsed.Milliseconds()
	ps.Error = ""
	result := "success"
	if err != nil {
		ps.Error = err.Error()
		result = "failure"
	}
	partitionLoadsTotal.WithLabelValues(table, result).Inc()
	partitionRowsTotal.WithLabelValues(table).Add(float64(rows))
	partitionLoadSeconds.WithLabelValues(table).Observe(elapsed.Seconds())
	t.log.Debug("STATS: ", ps.String())
}

// RowsLoaded returns the rows loaded into each partition of table, keyed by partition.
func (t *RunStats) RowsLoaded(table string) map[string]int64 {
	retval := make(map[string]int64)
	for _, p := range t.GetStats().Partitions {
		if p.Table == table && p.Error == "" {
			retval[p.Partition] = p.Rows
		}
	}
	return retval
}

// GetStats implements interface StatsFetcher{}.
func (t *RunStats) GetStats() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{RunID: t.RunID, Pipeline: t.Pipeline, Nodes: make([]NodeStats, 0), Partitions: make([]PartitionStats, 0)}
	iter := t.mapNodeStats.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() { // for each node...
		s.Nodes = append(s.Nodes, kv.Value.(*NodeStats).render())
	}
	iter = t.mapPartitionStats.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() { // for each partition...
		p := *kv.Value.(*PartitionStats)
		s.Partitions = append(s.Partitions, p)
		if p.Error == "" {
			s.TotalRows += p.Rows
		}
	}
	return s
}

// StartDumping logs the stats periodically until StopDumping is called.
func (t *RunStats) StartDumping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if atomic.AddInt32(&t.tickerIsRunningFlag, 0) == 0 { // if we're not already dumping stats...
		if t.tickerFrequency > 0 { // if stats dumping is enabled...
			t.ticker = time.NewTicker(time.Second * time.Duration(t.tickerFrequency))
			atomic.StoreInt32(&t.tickerIsRunningFlag, 1)
			go func() {
				t.log.Debug("stats dumper ticker started")
				for {
					select {
					case <-t.tickerDone:
						t.log.Debug("stats dumper ticker stopped")
						return
					case <-t.ticker.C:
						t.logStats()
					}
				}
			}()
		} else {
			t.log.Debug("stats dumper disabled")
		}
	} else {
		t.log.Debug("stats dumper ticker already running")
	}
}

// StopDumping will stop the ticker and dump the current stats,
// only if the ticker was already running via a call to StartDumping().
func (t *RunStats) StopDumping() {
	t.mu.Lock()
	running := atomic.AddInt32(&t.tickerIsRunningFlag, 0) > 0
	if running { // if we started to dump stats...
		atomic.StoreInt32(&t.tickerIsRunningFlag, 0)
		t.ticker.Stop()
	}
	t.mu.Unlock()
	if running {
		t.tickerDone <- struct{}{} // cause the goroutine to exit (we can't close ticker.C)
		t.logStats()
	}
}

// logStats outputs the stats of each node and partition.
func (t *RunStats) logStats() {
	s := t.GetStats()
	for _, n := range s.Nodes {
		t.log.Info(n.String())
	}
	for _, p := range s.Partitions {
		t.log.Info(p.String())
	}
}
