// Package observability holds the Prometheus collectors of the pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statement_desk"

// Metrics are the pipeline collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	parses       *prometheus.CounterVec
	parseSeconds *prometheus.HistogramVec
	pages        *prometheus.CounterVec
	transactions prometheus.Counter
	exports      *prometheus.CounterVec
	quotaDenials *prometheus.CounterVec
	batchFiles   *prometheus.CounterVec
	gatherer     prometheus.Gatherer
}

// NewMetrics registers the collectors on reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parses_total",
			Help:      "Statement parses by extraction method and outcome.",
		}, []string{"method", "outcome"}),
		parseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Wall-clock time of a statement parse.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"method"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages read, by extraction method.",
		}, []string{"method"}),
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions produced by successful parses.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Rendered exports by format and scope.",
		}, []string{"format", "scope"}),
		quotaDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denials_total",
			Help:      "Requests refused by the quota gate.",
		}, []string{"reason"}),
		batchFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_files_total",
			Help:      "Files processed by batch jobs, by outcome.",
		}, []string{"outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(m.parses, m.parseSeconds, m.pages, m.transactions, m.exports, m.quotaDenials, m.batchFiles)
	return m
}

// ObserveParse records one finished parse. outcome is "success" or an
// error kind.
func (m *Metrics) ObserveParse(method, outcome string, elapsed time.Duration, nativePages, ocrPages, transactions int) {
	if m == nil {
		return
	}
	if method == "" {
		method = "none"
	}
	m.parses.WithLabelValues(method, outcome).Inc()
	m.parseSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
	if nativePages > 0 {
		m.pages.WithLabelValues("native").Add(float64(nativePages))
	}
	if ocrPages > 0 {
		m.pages.WithLabelValues("ocr").Add(float64(ocrPages))
	}
	m.transactions.Add(float64(transactions))
}

func (m *Metrics) ObserveExport(format, scope string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format, scope).Inc()
}

func (m *Metrics) ObserveQuotaDenial(reason string) {
	if m == nil {
		return
	}
	m.quotaDenials.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveBatchFile(outcome string) {
	if m == nil {
		return
	}
	m.batchFiles.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
