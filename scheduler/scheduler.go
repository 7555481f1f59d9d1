// Package scheduler launches pipelines on their cron schedules with their parameter defaults.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/pipelines"
	"github.com/robfig/cron/v3"
)

// LaunchFunc runs a pipeline to completion.
type LaunchFunc func(ctx context.Context, pipeline string, params map[string]string) error

// Entry is one scheduled launch.
type Entry struct {
	Pipeline string            `json:"pipeline"`
	Schedule string            `json:"schedule"`
	Params   map[string]string `json:"params"`
	Next     time.Time         `json:"next,omitempty"`
	Prev     time.Time         `json:"prev,omitempty"`
	id       cron.EntryID
}

// Scheduler wraps a cron runner. A launch still running when its schedule fires again is skipped.
type Scheduler struct {
	Log     logger.Logger
	cron    *cron.Cron
	launch  LaunchFunc
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	entries []Entry
}

// New returns a stopped scheduler that calls launch.
func New(log logger.Logger, launch LaunchFunc, opts ...cron.Option) *Scheduler {
	cl := cronLogger{log: log.WithField("component", "scheduler")}
	opts = append([]cron.Option{
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	}, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		Log:    log,
		cron:   cron.New(opts...),
		launch: launch,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules pipeline with params on the standard cron spec schedule.
func (s *Scheduler) Add(pipeline, schedule string, params map[string]string) error {
	p := make(map[string]string, len(params))
	for k, v := range params {
		p[k] = v
	}
	id, err := s.cron.AddFunc(schedule, func() {
		s.Log.Info("scheduled run of pipeline ", pipeline, " is starting")
		if err := s.launch(s.ctx, pipeline, p); err != nil {
			s.Log.Error("scheduled run of pipeline ", pipeline, " failed: ", err)
		}
	})
	if err != nil {
		return fmt.Errorf("error scheduling pipeline %v on %q: %w", pipeline, schedule, err)
	}
	s.mu.Lock()
	s.entries = append(s.entries, Entry{Pipeline: pipeline, Schedule: schedule, Params: p, id: id})
	s.mu.Unlock()
	s.Log.Debug("scheduled pipeline ", pipeline, " on ", schedule)
	return nil
}

// Register schedules every pipeline of reg on its schedule and its clocks.
func (s *Scheduler) Register(reg *pipelines.Registry) error {
	for _, d := range reg.List() {
		if d.Schedule != "" {
			p, err := d.Params()
			if err != nil {
				return err
			}
			if err = s.Add(d.Name, d.Schedule, p); err != nil {
				return err
			}
		}
		for _, c := range d.Clocks {
			p, err := d.Params(c.Params)
			if err != nil {
				return err
			}
			if err = s.Add(d.Name, c.Schedule, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Log.Info("scheduler is running with ", len(s.Entries()), " schedules")
	s.cron.Start()
}

// Stop stops new launches, cancels the context of running ones and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.Log.Info("scheduler complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries returns the schedules ordered by pipeline with their next and previous fire times.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	retval := append([]Entry(nil), s.entries...)
	s.mu.Unlock()
	for idx := range retval {
		e := s.cron.Entry(retval[idx].id)
		retval[idx].Next = e.Next
		retval[idx].Prev = e.Prev
	}
	sort.SliceStable(retval, func(i, j int) bool { return retval[i].Pipeline < retval[j].Pipeline })
	return retval
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(append([]interface{}{msg, " "}, keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(append([]interface{}{msg, ": ", err, " "}, keysAndValues...)...)
}
