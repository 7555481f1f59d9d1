package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/pipelines"
)

func TestScheduler_Register(t *testing.T) {
	log := logger.NewLogger("forklift", "error", false)
	reg, err := pipelines.NewRegistry(pipelines.All()...)
	if err != nil {
		t.Fatal(err)
	}
	s := New(log, func(ctx context.Context, pipeline string, params map[string]string) error { return nil })
	if err = s.Register(reg); err != nil {
		t.Fatal(err)
	}
	perPipeline := make(map[string]int)
	for _, e := range s.Entries() {
		perPipeline[e.Pipeline]++
	}
	if perPipeline["sync-table"] != 3 || perPipeline["catches"] != 1 || perPipeline["segments"] != 0 {
		t.Fatalf("unexpected schedules %v", perPipeline)
	}
	var tables []string
	for _, e := range s.Entries() {
		if e.Pipeline == "sync-table" {
			tables = append(tables, e.Params["source_table"])
		}
	}
	if len(tables) != 3 || tables[0] == tables[1] || tables[1] == tables[2] {
		t.Fatalf("expected every clock to carry its own parameters; got %v", tables)
	}
	if err = s.Add("x", "not a schedule", nil); err == nil {
		t.Fatal("expected a bad schedule to be rejected")
	}
}

func TestScheduler_SkipIfStillRunning(t *testing.T) {
	log := logger.NewLogger("forklift", "error", false)
	var calls int32
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var got map[string]string
	s := New(log, func(ctx context.Context, pipeline string, params map[string]string) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			mu.Lock()
			got = params
			mu.Unlock()
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return errors.New("logged, not fatal")
	})
	if err := s.Add("catches", "@every 1s", map[string]string{"a": "1"}); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer once.Do(func() { close(release) })

	t.Log("Test 1 - a launch still running is not started again")
	time.Sleep(2500 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 launch while the first is running; got %v", n)
	}
	mu.Lock()
	a := got["a"]
	mu.Unlock()
	if a != "1" {
		t.Fatalf("expected the schedule parameters; got %v", got)
	}
	if e := s.Entries()[0]; e.Next.IsZero() || e.Prev.IsZero() {
		t.Fatalf("expected fire times; got %+v", e)
	}

	t.Log("Test 2 - stop cancels the running launch and waits for it")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}
