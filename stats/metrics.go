package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	partitionLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forklift_partition_loads_total",
			Help: "Partition loads by table and result",
		},
		[]string{"table", "result"},
	)
	partitionRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forklift_partition_rows_loaded_total",
			Help: "Rows inserted into warehouse partitions",
		},
		[]string{"table"},
	)
	partitionLoadSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forklift_partition_load_seconds",
			Help:    "Duration of partition loads",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~163s
		},
		[]string{"table"},
	)
	nodeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forklift_node_runs_total",
			Help: "Graph node outcomes by pipeline, node and state",
		},
		[]string{"pipeline", "node", "state"},
	)
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forklift_runs_total",
			Help: "Pipeline runs by final status",
		},
		[]string{"pipeline", "status"},
	)
	runsInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forklift_runs_in_progress",
			Help: "Pipeline runs currently executing",
		},
		[]string{"pipeline"},
	)
)

// RunStarted counts a run in progress.
func RunStarted(pipeline string) {
	runsInProgress.WithLabelValues(pipeline).Inc()
}

// RunFinished records the final status of a run.
func RunFinished(pipeline string, status string) {
	runsInProgress.WithLabelValues(pipeline).Dec()
	runsTotal.WithLabelValues(pipeline, status).Inc()
}
