// Package metrics exposes reconciliation counters for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"recon-dashboard/internal/domain"
)

// Import row outcomes
const (
	RowImported = "imported"
	RowSkipped  = "skipped"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	matchOutcomes       *prometheus.CounterVec
	duplicateRejections prometheus.Counter
	importRows          *prometheus.CounterVec
	projectionDuration  prometheus.Histogram
	paymentTransitions  *prometheus.CounterVec
	dedupeRemoved       prometheus.Counter
}

func New(registerer prometheus.Registerer) *Metrics {
	matchOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_match_outcomes_total",
		Help: "Reconciliation outcomes recorded on bill submission, by status.",
	}, []string{"status"})
	duplicateRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recon_duplicate_bill_rejections_total",
		Help: "Bill uploads rejected because their transaction code already has a bill.",
	})
	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_merchant_import_rows_total",
		Help: "Merchant settlement rows seen by file imports, by outcome.",
	}, []string{"outcome"})
	projectionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recon_projection_duration_seconds",
		Help:    "Time to load a snapshot and merge it into report records.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	paymentTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_payment_transitions_total",
		Help: "Payment status fan-outs applied, by payout leg and resulting status.",
	}, []string{"kind", "status"})
	dedupeRemoved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recon_dedupe_removed_total",
		Help: "Duplicate merchant rows removed by dedupe passes.",
	})

	registerer.MustRegister(
		matchOutcomes,
		duplicateRejections,
		importRows,
		projectionDuration,
		paymentTransitions,
		dedupeRemoved,
	)

	return &Metrics{
		matchOutcomes:       matchOutcomes,
		duplicateRejections: duplicateRejections,
		importRows:          importRows,
		projectionDuration:  projectionDuration,
		paymentTransitions:  paymentTransitions,
		dedupeRemoved:       dedupeRemoved,
	}
}

func (m *Metrics) ObserveMatch(status domain.MatchStatus) {
	if m == nil {
		return
	}
	m.matchOutcomes.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ObserveDuplicateBill() {
	if m == nil {
		return
	}
	m.duplicateRejections.Inc()
}

func (m *Metrics) ObserveImport(imported, skipped int) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues(RowImported).Add(float64(imported))
	m.importRows.WithLabelValues(RowSkipped).Add(float64(skipped))
}

func (m *Metrics) ObserveProjection(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.projectionDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePayment(kind domain.PaymentKind, status domain.PaymentStatus) {
	if m == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(string(kind), string(status)).Inc()
}

func (m *Metrics) ObserveDedupe(removed int) {
	if m == nil {
		return
	}
	m.dedupeRemoved.Add(float64(removed))
}
