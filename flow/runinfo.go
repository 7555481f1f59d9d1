package flow

import (
	"sort"
	"sync"
	"time"

	"github.com/relloyd/forklift/stats"
)

// RunStatusInfo is the live status of a launched run.
type RunStatusInfo struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    RunStatus `json:"pipeStatus"`
	Error     string    `json:"error"`
}

// RunIsFinished returns false while the run is starting or running.
func (t *RunStatusInfo) RunIsFinished() bool {
	return t.Status.IsFinished()
}

// StatusUpdate is sent by a launched run as it progresses.
type StatusUpdate struct {
	Status RunStatus
	Error  string
	Result *RunResult
}

type RunInfo struct {
	Pipeline string             `json:"pipeline"`
	Params   map[string]string  `json:"params"`
	Closer   *RunCloser         `json:"-"`
	Status   RunStatusInfo      `json:"runStatus"`
	Stats    stats.StatsFetcher `json:"-"`
	Result   *RunResult         `json:"-"`
}

// SafeMapRunInfo wraps a map[string]RunInfo with locking, via Load() and Store() methods.
type SafeMapRunInfo struct {
	sync.RWMutex
	Internal map[string]RunInfo
}

func NewSafeMapRunInfo() *SafeMapRunInfo {
	ti := SafeMapRunInfo{}
	ti.Internal = make(map[string]RunInfo)
	return &ti
}

func (t *SafeMapRunInfo) Load(key string) (ti RunInfo, ok bool) {
	t.RLock()
	ti, ok = t.Internal[key]
	t.RUnlock()
	return
}

func (t *SafeMapRunInfo) Store(key string, value RunInfo) {
	t.Lock()
	t.Internal[key] = value
	t.Unlock()
}

func (t *SafeMapRunInfo) Delete(key string) {
	t.Lock()
	delete(t.Internal, key)
	t.Unlock()
}

// Keys returns the run ids, oldest first.
func (t *SafeMapRunInfo) Keys() []string {
	t.RLock()
	defer t.RUnlock()
	keys := make([]string, 0, len(t.Internal))
	for k := range t.Internal {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := t.Internal[keys[i]].Status.StartTime, t.Internal[keys[j]].Status.StartTime
		if a.Equal(b) {
			return keys[i] < keys[j]
		}
		return a.Before(b)
	})
	return keys
}

// ConsumeStatusChanges loops until chanStatus is closed
// and updates t.Internal[runID] with any statuses received.
func (t *SafeMapRunInfo) ConsumeStatusChanges(runID string, chanStatus chan StatusUpdate) {
	for status := range chanStatus {
		ti, _ := t.Load(runID)
		ti.Status.Status = status.Status
		switch status.Status {
		case StatusRunning:
			ti.Status.StartTime = time.Now()
		case StatusSucceeded, StatusFailed, StatusShutdown:
			ti.Status.EndTime = time.Now()
			ti.Status.Error = status.Error
		}
		if status.Result != nil {
			ti.Result = status.Result
		}
		t.Store(runID, ti)
	}
}
