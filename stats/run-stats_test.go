package stats

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relloyd/forklift/logger"
)

func TestRunStats(t *testing.T) {
	log := logger.NewLogger("forklift", "error", false)
	s := NewRunStats(log, "run1", "catches", SetStatsDumpFrequency(0))

	t.Log("Test 1 - node outcomes keep insertion order")
	s.NodeStarted("extract")
	s.NodeFinished("extract", "succeeded", 3, 0, nil)
	s.NodeFinished("summary", "skipped", 0, 0, errors.New("upstream skipped"))
	snap := s.GetStats()
	if len(snap.Nodes) != 2 || snap.Nodes[0].NodeName != "extract" || snap.Nodes[1].StatusText != "skipped" {
		t.Fatalf("unexpected nodes %+v", snap.Nodes)
	}
	if snap.Nodes[0].Instances != 3 || snap.Nodes[1].Error == "" {
		t.Fatalf("unexpected node details %+v", snap.Nodes)
	}

	t.Log("Test 2 - partition loads count rows and keep the latest outcome")
	before := testutil.ToFloat64(partitionRowsTotal.WithLabelValues("stats_test.t"))
	s.PartitionLoaded("stats_test.t", "202501", 10, time.Millisecond, nil)
	s.PartitionLoaded("stats_test.t", "202502", 5, time.Millisecond, errors.New("boom"))
	s.PartitionLoaded("stats_test.t", "202502", 7, time.Millisecond, nil)
	snap = s.GetStats()
	if len(snap.Partitions) != 2 || snap.Partitions[1].Loads != 2 || snap.Partitions[1].Error != "" {
		t.Fatalf("unexpected partitions %+v", snap.Partitions)
	}
	if snap.TotalRows != 17 {
		t.Fatalf("expected 17 rows; got %v", snap.TotalRows)
	}
	if got := testutil.ToFloat64(partitionRowsTotal.WithLabelValues("stats_test.t")) - before; got != 22 {
		t.Fatalf("expected the metric to count 22 rows; got %v", got)
	}
	rows := s.RowsLoaded("stats_test.t")
	if rows["202501"] != 10 || rows["202502"] != 7 {
		t.Fatalf("unexpected rows per partition %v", rows)
	}

	t.Log("Test 3 - dumping can be started and stopped")
	s = NewRunStats(log, "run2", "catches", SetStatsDumpFrequency(1))
	s.StartDumping()
	s.StartDumping()
	s.StopDumping()
	s.StopDumping()
}

func TestNodeStatsString(t *testing.T) {
	n := (&NodeStats{NodeName: "load", StartTime: time.Now(), EndTime: time.Now(), StatusText: "failed"}).render()
	if n.StatusEmoji != "\U0000274C" || n.String() == "" {
		t.Fatalf("unexpected rendering %+v", n)
	}
	var nilStats *RunStats
	if got := nilStats.GetStats(); got.RunID != "" {
		t.Fatal("expected an empty snapshot")
	}
}
