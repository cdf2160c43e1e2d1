// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	LeadsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_leads_submitted_total",
			Help: "Lead submissions by outcome (created, duplicate, invalid, error)",
		},
		[]string{"outcome", "attributed"},
	)

	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_rate_limit_decisions_total",
			Help: "Rate limiter decisions per policy (allowed, denied, fail_open, fail_closed)",
		},
		[]string{"policy", "decision"},
	)

	CodeGenerationAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "funnel_referral_code_attempts",
			Help:    "Conditional-insert probes needed to allocate a referral code",
			Buckets: []float64{1, 2, 3, 5, 8, 10},
		},
	)

	CommissionEffects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_commission_effects_total",
			Help: "Affiliate counter effects by kind and whether they were applied or already recorded",
		},
		[]string{"kind", "result"},
	)

	OutboxEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_outbox_events_total",
			Help: "Outbox deliveries by result (published, retry, dead_letter, inline_failed)",
		},
		[]string{"event_type", "result"},
	)

	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "funnel_outbox_claimed_batch_size",
			Help: "Events claimed by the last relay tick",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "funnel_http_request_duration_seconds",
			Help:    "API request latency by route pattern and status class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
