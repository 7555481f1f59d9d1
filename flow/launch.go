package flow

import (
	"context"
	"time"

	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/stats"
	"github.com/rs/xid"
)

// LaunchRun validates g and launches it with executor e. It stores the new run in ri and returns its id.
// If blockUntilComplete is false the run happens in a goroutine.
func LaunchRun(log logger.Logger, ri *SafeMapRunInfo, e *Executor, g *Graph, params map[string]string, blockUntilComplete bool,
) (runID string, err error) {
	if err = g.Validate(); err != nil {
		return "", err
	}
	runID = xid.New().String()
	s := stats.NewRunStats(log.WithField("run", runID), runID, g.Name, e.StatsOptions...)
	chanStatus := make(chan StatusUpdate, 1) // channel for us to receive status messages back from the run
	chanShutdown := make(chan error, 1)      // channel upon which we can stop the current run
	tc := NewRunCloser(chanStatus, chanShutdown)
	ri.Store(runID, RunInfo{
		Pipeline: g.Name,
		Params:   params,
		Closer:   tc,
		Stats:    s,
		Status:   RunStatusInfo{Status: StatusStarting, StartTime: time.Now()},
	})
	// Consume status messages from the run, saving them to our instance of RunInfo.
	consumed := make(chan struct{})
	go func() {
		ri.ConsumeStatusChanges(runID, chanStatus)
		close(consumed)
	}()
	log.Info("Launching run ", runID, " of pipeline ", g.Name)
	cleanupHandler := GetCleanupHandlerWithChannelsFunc(log, runID, tc)
	panicHandler := GetPanicHandlerWithChannelsFunc(tc)
	launch := func() {
		LaunchWithControlChannels(log, e, g, params, runID, s, tc, cleanupHandler, panicHandler)
		<-consumed
	}
	if blockUntilComplete {
		launch()
	} else {
		go launch()
	}
	return runID, nil
}

// LaunchWithControlChannels runs g and can be stopped via the closer. After the run it sends the final
// status and result, then closes the closer's channels.
func LaunchWithControlChannels(log logger.Logger,
	e *Executor,
	g *Graph,
	params map[string]string,
	runID string,
	s *stats.RunStats,
	tc *RunCloser,
	cleanupHandlerFn CleanupHandlerFunc,
	panicHandlerFn PanicHandlerFunc,
) {
	defer panicHandlerFn()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cleanupHandlerFn(log, cancel) // listen for quit signals.
	tc.SendStatus(StatusUpdate{Status: StatusRunning})
	res, err := e.RunWith(ctx, runID, s, g, params)
	final := StatusUpdate{Status: StatusSucceeded, Result: res}
	if res != nil {
		final.Status = res.Status
	}
	if err != nil {
		final.Error = err.Error()
		if res == nil {
			final.Status = StatusFailed
		}
	}
	tc.CloseChannels(&final)
}
