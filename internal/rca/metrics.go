package rca

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReportsTotal counts CreateReport outcomes.
	// Labels: outcome (created, recurred), priority
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rca",
			Subsystem: "reports",
			Name:      "total",
			Help:      "Total number of detections by dedup outcome and priority",
		},
		[]string{"outcome", "priority"},
	)

	// DedupConflictRetries counts inserts that lost the open-signature race.
	DedupConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rca",
			Subsystem: "reports",
			Name:      "dedup_conflict_retries_total",
			Help:      "Total number of signature conflicts recovered by read-after-conflict retry",
		},
	)

	// RedactionsTotal counts secrets scrubbed from evidence.
	// Labels: rule
	RedactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rca",
			Subsystem: "reports",
			Name:      "redactions_total",
			Help:      "Total number of secrets redacted from evidence by detection rule",
		},
		[]string{"rule"},
	)

	// TransitionsTotal counts committed lifecycle transitions.
	// Labels: entity (report, capa), to
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rca",
			Name:      "transitions_total",
			Help:      "Total number of committed status transitions",
		},
		[]string{"entity", "to"},
	)

	// GateEvaluationsTotal counts gate evaluations.
	// Labels: result (pass, blocked)
	GateEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rca",
			Subsystem: "gate",
			Name:      "evaluations_total",
			Help:      "Total number of gate evaluations by verdict",
		},
		[]string{"result"},
	)

	// GateEvaluationDuration tracks how long gate evaluations take.
	GateEvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rca",
			Subsystem: "gate",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of gate evaluations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// HandoffsBlocked counts RequirePass refusals.
	HandoffsBlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rca",
			Subsystem: "gate",
			Name:      "handoffs_blocked_total",
			Help:      "Total number of handoffs refused with RCA_GATE_BLOCKED",
		},
	)

	// LearningRecordsTotal counts records written to the corpus.
	// Labels: preventable (true, false)
	LearningRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rca",
			Subsystem: "learning",
			Name:      "records_total",
			Help:      "Total number of learning records ingested",
		},
		[]string{"preventable"},
	)

	// AnalysesTotal counts stored report analyses.
	// Labels: matched (true, false)
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rca",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total number of report analyses by whether a pattern matched",
		},
		[]string{"matched"},
	)

	// PublishFailures counts lifecycle messages that could not be delivered.
	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rca",
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Total number of lifecycle messages that failed to publish",
		},
	)

	// EventsPruned counts audit rows removed by retention.
	EventsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rca",
			Subsystem: "events",
			Name:      "pruned_total",
			Help:      "Total number of audit events deleted by retention cleanup",
		},
	)
)
