package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Settlement computation metrics
	settlementsComputedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_computed_total",
		Help: "Total settlement reads by outcome",
	}, []string{
		"outcome", // created, updated, frozen, cached, no_data, not_found, error
	})

	settlementComputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_compute_duration_seconds",
		Help:    "Time to compute or serve one driver-week settlement",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{
		"outcome",
	})

	// Net payable distribution in euros (drafts and commits)
	settlementNetPayable = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_net_payable_euros",
		Help:    "Distribution of computed net payable amounts",
		Buckets: []float64{0, 100, 250, 500, 750, 1000, 1500, 2500, 5000},
	}, []string{
		"payment_status",
	})

	// Ingestion source metrics
	ingestionSourceReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_source_reads_total",
		Help: "Ingestion source reads by result",
	}, []string{
		"source",
		"status", // ok, failed
	})

	ingestionSourceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingestion_source_duration_seconds",
		Help:    "Time to read one ingestion source",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{
		"source",
	})

	// Accumulator failures become diagnostics, never errors; this is the
	// only place they are counted.
	accumulatorFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accumulator_failures_total",
		Help: "Commission, referral and goal evaluations that fell back to zero",
	}, []string{
		"accumulator",
	})

	// Payment commit metrics
	paymentCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_commits_total",
		Help: "Payment commit attempts by outcome",
	}, []string{
		"outcome", // committed, already_paid, conflict, invalid, failed
	})

	paymentCommitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_commit_duration_seconds",
		Help:    "Time for the upload-then-commit sequence",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"outcome",
	})

	evidenceRollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evidence_rollbacks_total",
		Help: "Compensating evidence deletes after a failed commit",
	}, []string{
		"status", // deleted, orphaned
	})

	// Batch recompute metrics
	recomputeTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recompute_tasks_total",
		Help: "Background recompute tasks by status",
	}, []string{
		"status", // enqueued, processed, failed
	})
)

// RecordSettlement records one settlement read
func RecordSettlement(outcome string, duration float64) {
	settlementsComputedTotal.WithLabelValues(outcome).Inc()
	settlementComputeDuration.WithLabelValues(outcome).Observe(duration)
}

// ObserveNetPayable records a computed net payable amount in euros
func ObserveNetPayable(paymentStatus string, euros float64) {
	settlementNetPayable.WithLabelValues(paymentStatus).Observe(euros)
}

// RecordIngestionSource records one source read
func RecordIngestionSource(source string, ok bool, duration float64) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	ingestionSourceReadsTotal.WithLabelValues(source, status).Inc()
	ingestionSourceDuration.WithLabelValues(source).Observe(duration)
}

// RecordAccumulatorFailure counts an accumulator that fell back to zero
func RecordAccumulatorFailure(accumulator string) {
	accumulatorFailuresTotal.WithLabelValues(accumulator).Inc()
}

// RecordPaymentCommit records a payment commit attempt
func RecordPaymentCommit(outcome string, duration float64) {
	paymentCommitsTotal.WithLabelValues(outcome).Inc()
	paymentCommitDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordEvidenceRollback records a compensating delete
func RecordEvidenceRollback(deleted bool) {
	status := "deleted"
	if !deleted {
		status = "orphaned"
	}
	evidenceRollbacksTotal.WithLabelValues(status).Inc()
}

// RecordRecomputeTask records a background recompute task state change
func RecordRecomputeTask(status string) {
	recomputeTasksTotal.WithLabelValues(status).Inc()
}
