package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ruleflow_jobs_enqueued_total",
		Help: "Total number of evaluation jobs placed on the queue, labelled by trigger kind.",
	}, []string{"trigger"})

	JobsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ruleflow_jobs_dropped_total",
		Help: "Total number of jobs rejected due to a full queue.",
	})

	JobsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ruleflow_jobs_deduped_total",
		Help: "Total number of schedule jobs absorbed by the per-minute dedupe key.",
	})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ruleflow_jobs_processed_total",
		Help: "Total number of jobs reaching a terminal status, labelled by status.",
	}, []string{"status"})

	JobRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ruleflow_job_retries_total",
		Help: "Total number of retry jobs spawned for transient faults.",
	})

	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ruleflow_events_dispatched_total",
		Help: "Total number of mutation events seen by the dispatcher, labelled by event kind.",
	}, []string{"event"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ruleflow_actions_executed_total",
		Help: "Total number of action steps executed, labelled by type and status.",
	}, []string{"action_type", "status"})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ruleflow_job_duration_ms",
		Help:    "End-to-end job processing latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ruleflow_queue_utilization_ratio",
		Help: "Current job queue utilization (0–1).",
	})
)
