// Package metrics exposes Prometheus instruments for the import pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
)

const namespace = "ledger"

// Row outcomes counted by RowsTotal.
const (
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
	OutcomePending   = "pending"
)

// Metrics holds the collectors registered on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	ImportsTotal       *prometheus.CounterVec
	RowsTotal          *prometheus.CounterVec
	ImportDuration     *prometheus.HistogramVec
	ConfirmationsTotal *prometheus.CounterVec
	InstallmentGroups  prometheus.Counter
}

// New creates the collectors and registers them, with the Go runtime
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Finished imports by source type and final batch status.",
		}, []string{"source", "status"}),
		RowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Imported rows by outcome.",
		}, []string{"outcome"}),
		ImportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Wall time of an import from decode to finalization.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"source"}),
		ConfirmationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_confirmations_total",
			Help:      "Review queue confirmations by outcome.",
		}, []string{"outcome"}),
		InstallmentGroups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installment_groups_created_total",
			Help:      "Installment groups created manually.",
		}),
	}

	m.Registry.MustRegister(
		m.ImportsTotal,
		m.RowsTotal,
		m.ImportDuration,
		m.ConfirmationsTotal,
		m.InstallmentGroups,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveImport records a finished import.
func (m *Metrics) ObserveImport(source, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ImportsTotal.WithLabelValues(source, status).Inc()
	m.ImportDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// AddRows counts n rows with the given outcome.
func (m *Metrics) AddRows(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveConfirmation counts a review confirmation ("resolved" or "duplicate").
func (m *Metrics) ObserveConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.ConfirmationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveInstallmentGroup counts a created installment group.
func (m *Metrics) ObserveInstallmentGroup() {
	if m == nil {
		return
	}
	m.InstallmentGroups.Inc()
}

// WriteText writes every registered family, ledger ones only unless all is
// set, in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer, all bool) error {
	if m == nil {
		return nil
	}
	families, err := m.Registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if !all && !hasNamespace(mf.GetName()) {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func hasNamespace(name string) bool {
	return len(name) > len(namespace) && name[:len(namespace)+1] == namespace+"_"
}
