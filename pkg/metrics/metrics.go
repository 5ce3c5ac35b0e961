package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	orchestrator = "translation_orchestrator"

	// Job metrics
	jobTransitionsTotal = "job_transitions_total"

	// Task metrics
	taskOutcomesTotal = "task_outcomes_total"

	// Run metrics
	runTransitionsTotal = "run_transitions_total"

	// Sweep metrics
	recoveryActionsTotal = "recovery_actions_total"
	discoveryJobsTotal   = "discovery_jobs_total"
	connectedJobsTotal   = "connected_jobs_total"

	// Labels
	statusLabel   = "status"
	outcomeLabel  = "outcome"
	strategyLabel = "strategy"
	kindLabel     = "kind"
)

/**
* Metrics definition
**/
var jobTransitionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: orchestrator,
		Name:      jobTransitionsTotal,
		Help:      "number of job status transitions partitioned by the new status",
	},
	[]string{statusLabel},
)

var runTransitionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: orchestrator,
		Name:      runTransitionsTotal,
		Help:      "number of run status transitions partitioned by the new status",
	},
	[]string{statusLabel},
)

var taskOutcomesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: orchestrator,
		Name:      taskOutcomesTotal,
		Help:      "number of saved task attempts partitioned by outcome",
	},
	[]string{outcomeLabel},
)

var recoveryActionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: orchestrator,
		Name:      recoveryActionsTotal,
		Help:      "number of stale jobs repaired partitioned by strategy",
	},
	[]string{strategyLabel},
)

var discoveryJobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: orchestrator,
		Name:      discoveryJobsTotal,
		Help:      "number of jobs seeded by discovery, pending or already covered",
	},
	[]string{kindLabel},
)

var connectedJobsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: orchestrator,
		Name:      connectedJobsTotal,
		Help:      "number of jobs assigned to runs",
	},
)

func IncreaseJobTransitionsMetric(status string) {
	jobTransitionsTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func IncreaseRunTransitionsMetric(status string) {
	runTransitionsTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func IncreaseTaskOutcomesMetric(outcome string) {
	taskOutcomesTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseRecoveryActionsMetric(strategy string, count int) {
	recoveryActionsTotalMetric.With(prometheus.Labels{strategyLabel: strategy}).Add(float64(count))
}

func IncreaseDiscoveryJobsMetric(kind string, count int) {
	discoveryJobsTotalMetric.With(prometheus.Labels{kindLabel: kind}).Add(float64(count))
}

func IncreaseConnectedJobsMetric(count int64) {
	connectedJobsTotalMetric.Add(float64(count))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobTransitionsTotalMetric)
	prometheus.MustRegister(runTransitionsTotalMetric)
	prometheus.MustRegister(taskOutcomesTotalMetric)
	prometheus.MustRegister(recoveryActionsTotalMetric)
	prometheus.MustRegister(discoveryJobsTotalMetric)
	prometheus.MustRegister(connectedJobsTotalMetric)
	prometheus.MustRegister(busyWorkersMetric)
}
