package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReminderRuns counts reminder runs by trigger source and final state (completed|failed|unauthorized|conflict).
	ReminderRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctracker_reminder_runs_total",
			Help: "Total number of reminder runs",
		},
		[]string{"source", "state"},
	)

	// ReminderRunDuration measures how long completed and failed runs take.
	ReminderRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doctracker_reminder_run_duration_seconds",
			Help:    "Reminder run duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	// ReminderOutcomes counts per-document outcomes (sent|skipped|error).
	ReminderOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctracker_reminder_outcomes_total",
			Help: "Per-document reminder outcomes",
		},
		[]string{"outcome"},
	)

	// LastRunTimestamp records the unix time of the last completed run.
	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "doctracker_reminder_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed reminder run",
		},
	)

	// DeliveryBreakerState exposes the email circuit breaker state (0 closed, 1 half-open, 2 open).
	DeliveryBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "doctracker_delivery_breaker_state",
			Help: "Delivery circuit breaker state",
		},
		[]string{"channel"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doctracker_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
