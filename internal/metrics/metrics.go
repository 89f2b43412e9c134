// Package metrics holds the Prometheus collectors for pools, jobs and test
// files. Collectors live in a dedicated registry so a run can be exported as
// a node_exporter textfile without the Go runtime collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values for outcomes.
const (
	ResultOK       = "ok"
	ResultFailed   = "failed"
	ResultTimeout  = "timeout"
	ResultCanceled = "canceled"
)

// Registry holds every labrunner collector.
var Registry = prometheus.NewRegistry()

var (
	PoolRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labrunner_pool_runs_total",
			Help: "Total number of task pool runs by result.",
		},
		[]string{"result"},
	)

	PoolWorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "labrunner_pool_workers_active",
			Help: "Number of pool workers currently executing an item.",
		},
	)

	PoolRunSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "labrunner_pool_run_seconds",
			Help:    "Wall-clock duration of task pool runs in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	JobsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labrunner_jobs_started_total",
			Help: "Total number of background jobs launched.",
		},
	)

	JobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labrunner_jobs_total",
			Help: "Total number of job outcomes collected by terminal state.",
		},
		[]string{"state"},
	)

	TestFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labrunner_test_files_total",
			Help: "Total number of test files executed by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(PoolRuns, PoolWorkersActive, PoolRunSeconds, JobsStarted, JobsFinished, TestFiles)
}

// WriteTextfile writes the current values in the Prometheus text format,
// atomically replacing path.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
