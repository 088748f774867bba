// Package metrics exposes the pipeline's Prometheus instrumentation: phase
// transitions, failed meetings, job outcomes and durations, discovery runs,
// reconciliation repairs, and file-server request counts, registered via
// promauto the way the donor's worker package instruments its own FSM.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PhaseTransitions counts every successful Advance, labeled by the
	// phase transitioned from and to.
	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnv_meetings_phase_transitions_total",
			Help: "Total meeting phase transitions by from/to phase.",
		},
		[]string{"from_phase", "to_phase"},
	)

	// MeetingsFailed counts every meeting marked FAILED, labeled by the
	// phase it failed at.
	MeetingsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnv_meetings_failed_total",
			Help: "Total meetings marked FAILED by the phase they failed at.",
		},
		[]string{"failed_at_phase"},
	)

	// JobsProcessed counts every worker job processed, labeled by queue
	// and outcome (success, transient, precondition).
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnv_meetings_jobs_processed_total",
			Help: "Total worker jobs processed by queue and outcome.",
		},
		[]string{"queue", "outcome"},
	)

	// JobDuration observes wall-clock time spent processing a job, labeled
	// by queue.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gnv_meetings_job_duration_seconds",
			Help:    "Time spent processing a single worker job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"queue"},
	)

	// DiscoveryRuns counts each discovery poll, labeled by outcome.
	DiscoveryRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnv_meetings_discovery_runs_total",
			Help: "Total discovery poll runs by outcome (ok, lock_held, error).",
		},
		[]string{"outcome"},
	)

	// ReconcileRepaired counts jobs re-enqueued by the reconciliation sweep.
	ReconcileRepaired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gnv_meetings_reconcile_repaired_total",
			Help: "Total missing jobs re-enqueued by the reconciliation sweep.",
		},
	)

	// FileServerRequests counts every file-server HTTP request, labeled by
	// route and status class.
	FileServerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnv_meetings_fileserver_requests_total",
			Help: "Total file server HTTP requests by route and status.",
		},
		[]string{"route", "status"},
	)
)
