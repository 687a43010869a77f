// Package metrics exposes the control plane's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsReceived counts every drift alert handed to the listener.
	AlertsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrainctl_alerts_received_total",
		Help: "Drift alerts received by the listener.",
	})

	// AlertsForwarded counts alerts that passed all listener checks and were
	// enqueued as training jobs.
	AlertsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrainctl_alerts_forwarded_total",
		Help: "Drift alerts forwarded to the training queue.",
	})

	// JobsEnqueued counts jobs admitted by the resource manager.
	JobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrainctl_jobs_enqueued_total",
		Help: "Training jobs admitted to the priority queue.",
	})

	// JobsRejected counts jobs refused at admission, by reason.
	JobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrainctl_jobs_rejected_total",
		Help: "Training jobs rejected at admission.",
	}, []string{"reason"})

	// JobsCompleted counts jobs whose payload returned without error.
	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrainctl_jobs_completed_total",
		Help: "Training jobs executed successfully.",
	})

	// JobsFailed counts jobs whose payload errored or panicked.
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrainctl_jobs_failed_total",
		Help: "Training jobs that failed during execution.",
	})

	// Promotions counts candidates promoted to production.
	Promotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrainctl_promotions_total",
		Help: "Candidate models promoted to production.",
	})

	// Rollbacks counts rollback attempts that re-applied a stable model.
	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrainctl_rollbacks_total",
		Help: "Rollbacks performed to the last stable model.",
	})
)
