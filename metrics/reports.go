// Package metrics registers the Prometheus collectors of the loyalty service.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReportMetrics records report recomputations. A nil *ReportMetrics is a
// valid no-op recorder.
type ReportMetrics struct {
	duration     *prometheus.HistogramVec
	actors       *prometheus.CounterVec
	failures     *prometheus.CounterVec
	configIssues *prometheus.CounterVec
	dataWarnings *prometheus.CounterVec
	admissions   *prometheus.CounterVec
}

// NewReportMetrics registers the report metrics on the provided registerer.
func NewReportMetrics(reg prometheus.Registerer) *ReportMetrics {
	if reg == nil {
		return &ReportMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loyalty_report_duration_seconds",
		Help:    "Duration of report recomputations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	actors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_report_actors_total",
		Help: "Actors recomputed by reports.",
	}, []string{"kind"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_report_failures_total",
		Help: "Reports that failed to build.",
	}, []string{"kind"})
	configIssues := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_tier_table_issues_total",
		Help: "Reports built with an invalid multiplier tier table.",
	}, []string{"kind"})
	dataWarnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_data_integrity_warnings_total",
		Help: "Transactions with null or negative values seen by recomputations.",
	}, []string{"code"})
	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_point_submissions_total",
		Help: "Point submissions by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, actors, failures, configIssues, dataWarnings, admissions)
	return &ReportMetrics{
		duration:     duration,
		actors:       actors,
		failures:     failures,
		configIssues: configIssues,
		dataWarnings: dataWarnings,
		admissions:   admissions,
	}
}

// ObserveReport records one finished report.
func (m *ReportMetrics) ObserveReport(kind string, actors int, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	kind = normalizeLabel(kind)
	m.duration.WithLabelValues(kind).Observe(duration.Seconds())
	m.actors.WithLabelValues(kind).Add(float64(actors))
}

// IncFailure counts a report that could not be built.
func (m *ReportMetrics) IncFailure(kind string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncConfigIssue counts a report built on an invalid tier table.
func (m *ReportMetrics) IncConfigIssue(kind string) {
	if m == nil || m.configIssues == nil {
		return
	}
	m.configIssues.WithLabelValues(normalizeLabel(kind)).Inc()
}

// AddDataWarnings counts integrity warnings by code.
func (m *ReportMetrics) AddDataWarnings(code string, n int) {
	if m == nil || m.dataWarnings == nil || n == 0 {
		return
	}
	m.dataWarnings.WithLabelValues(normalizeLabel(code)).Add(float64(n))
}

// IncSubmission counts a point submission by outcome ("admitted", "rejected").
func (m *ReportMetrics) IncSubmission(outcome string) {
	if m == nil || m.admissions == nil {
		return
	}
	m.admissions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
