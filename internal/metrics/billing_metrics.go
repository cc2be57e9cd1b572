// Package metrics registers the prometheus instruments for the billing
// engine. Everything hangs off a process-wide singleton so the
// scheduler and the HTTP layer share one set of collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics captures billing engine health signals.
type BillingMetrics struct {
	invoicesGenerated *prometheus.CounterVec
	invoiceErrors     *prometheus.CounterVec
	sequenceConflicts prometheus.Counter
	prorationEvents   *prometheus.CounterVec
	prorationReplays  prometheus.Counter
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobErrors         *prometheus.CounterVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	invoicesGenerated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kintai_invoices_generated_total",
		Help: "Invoices generated by source (api or scheduler).",
	}, []string{"source"})
	invoiceErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kintai_invoice_errors_total",
		Help: "Invoice generation failures by source.",
	}, []string{"source"})
	sequenceConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kintai_invoice_sequence_conflicts_total",
		Help: "Invoice number allocation conflicts that triggered a retry.",
	})
	prorationEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kintai_proration_events_total",
		Help: "Proration events recorded by action.",
	}, []string{"action"})
	prorationReplays := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kintai_proration_replays_total",
		Help: "Duplicate proration submissions absorbed by the checksum index.",
	})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kintai_scheduler_job_runs_total",
		Help: "Scheduler job runs by name.",
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kintai_scheduler_job_duration_seconds",
		Help:    "Scheduler job latency.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kintai_scheduler_job_errors_total",
		Help: "Scheduler job errors by name.",
	}, []string{"job"})

	registerer.MustRegister(
		invoicesGenerated,
		invoiceErrors,
		sequenceConflicts,
		prorationEvents,
		prorationReplays,
		jobRuns,
		jobDuration,
		jobErrors,
	)

	return &BillingMetrics{
		invoicesGenerated: invoicesGenerated,
		invoiceErrors:     invoiceErrors,
		sequenceConflicts: sequenceConflicts,
		prorationEvents:   prorationEvents,
		prorationReplays:  prorationReplays,
		jobRuns:           jobRuns,
		jobDuration:       jobDuration,
		jobErrors:         jobErrors,
	}
}

// IncInvoiceGenerated increments the generated counter for a source.
func (m *BillingMetrics) IncInvoiceGenerated(source string) {
	if m == nil || m.invoicesGenerated == nil {
		return
	}
	m.invoicesGenerated.WithLabelValues(source).Inc()
}

// IncInvoiceError increments the failure counter for a source.
func (m *BillingMetrics) IncInvoiceError(source string) {
	if m == nil || m.invoiceErrors == nil {
		return
	}
	m.invoiceErrors.WithLabelValues(source).Inc()
}

// IncSequenceConflict counts a lost numbering race.
func (m *BillingMetrics) IncSequenceConflict() {
	if m == nil || m.sequenceConflicts == nil {
		return
	}
	m.sequenceConflicts.Inc()
}

// IncProrationEvent counts a recorded proration event by action.
func (m *BillingMetrics) IncProrationEvent(action string) {
	if m == nil || m.prorationEvents == nil {
		return
	}
	m.prorationEvents.WithLabelValues(action).Inc()
}

// IncProrationReplay counts an idempotent duplicate submission.
func (m *BillingMetrics) IncProrationReplay() {
	if m == nil || m.prorationReplays == nil {
		return
	}
	m.prorationReplays.Inc()
}

// IncJobRun increments the run counter for a scheduler job.
func (m *BillingMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *BillingMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobError increments the scheduler job error counter.
func (m *BillingMetrics) IncJobError(job string) {
	if m == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job).Inc()
}
