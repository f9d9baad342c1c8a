// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the executor's cumulative view of its work, recomputed
// after each task completion and broadcast to subscribers.
type Metrics struct {
	// TotalTasks counts every submission.
	TotalTasks int

	// CompletedTasks counts tasks that finished without error.
	CompletedTasks int

	// FailedTasks counts tasks whose error was surfaced after retries.
	FailedTasks int

	// AverageTaskTime is the mean wall time of finished tasks.
	AverageTaskTime time.Duration

	// ParallelEfficiency is busy time over elapsed time times the
	// concurrency bound, in [0,1].
	ParallelEfficiency float64

	// RetryCount counts every retry attempt across all tasks.
	RetryCount int
}

// Collector exports executor activity to Prometheus. One collector is
// shared by all executors with the same name label.
type Collector struct {
	tasksSubmitted prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	retries        prometheus.Counter
	running        prometheus.Gauge
	taskDuration   prometheus.Histogram
}

// NewCollector registers executor metrics on reg under the given
// executor name. A nil Registerer returns a nil collector, which
// disables export.
func NewCollector(reg prometheus.Registerer, name string) *Collector {
	if reg == nil {
		return nil
	}
	labels := prometheus.Labels{"executor": name}
	factory := promauto.With(reg)
	return &Collector{
		tasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name:        "research_agent_executor_tasks_submitted_total",
			Help:        "Tasks submitted to the executor.",
			ConstLabels: labels,
		}),
		tasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name:        "research_agent_executor_tasks_completed_total",
			Help:        "Tasks that completed successfully.",
			ConstLabels: labels,
		}),
		tasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name:        "research_agent_executor_tasks_failed_total",
			Help:        "Tasks that failed after exhausting retries.",
			ConstLabels: labels,
		}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name:        "research_agent_executor_retries_total",
			Help:        "Retry attempts across all tasks.",
			ConstLabels: labels,
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "research_agent_executor_running_tasks",
			Help:        "Tasks currently executing.",
			ConstLabels: labels,
		}),
		taskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "research_agent_executor_task_duration_seconds",
			Help:        "Wall time per task including retries.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}
