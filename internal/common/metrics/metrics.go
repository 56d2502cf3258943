// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the engine's collectors
type Metrics struct {
	LineOperations    *prometheus.CounterVec
	ApprovalDecisions *prometheus.CounterVec
	Submits           *prometheus.CounterVec
	CatalogLoads      *prometheus.CounterVec
	UpstreamLatency   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg (nil skips
// registration, which tests use).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LineOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightdocs_line_operations_total",
			Help: "Line item operations issued by reconciliation.",
		}, []string{"document_type", "op", "outcome"}),
		ApprovalDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightdocs_approval_decisions_total",
			Help: "Approval decisions recorded per document type.",
		}, []string{"document_type", "decision"}),
		Submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightdocs_submits_total",
			Help: "Document submits by outcome.",
		}, []string{"document_type", "outcome"}),
		CatalogLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightdocs_catalog_loads_total",
			Help: "Reference catalog loads by outcome.",
		}, []string{"catalog", "outcome"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "freightdocs_upstream_request_duration_seconds",
			Help:    "Latency of upstream ERP API calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	if reg != nil {
		reg.MustRegister(m.LineOperations, m.ApprovalDecisions, m.Submits, m.CatalogLoads, m.UpstreamLatency)
	}
	return m
}

// ObserveUpstream matches httpclient.Observer
func (m *Metrics) ObserveUpstream(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamLatency.
		WithLabelValues(method, Route(path), strconv.Itoa(status)).
		Observe(elapsed.Seconds())
}

// Route reduces a request path to a low-cardinality label: the query is
// dropped and numeric segments become ":id".
func Route(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg != "" && strings.IndexFunc(seg, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

// RecordLineOperation counts one reconcile call
func (m *Metrics) RecordLineOperation(documentType, op, outcome string) {
	if m == nil {
		return
	}
	m.LineOperations.WithLabelValues(documentType, op, outcome).Inc()
}

// RecordApproval counts one recorded decision
func (m *Metrics) RecordApproval(documentType, decision string) {
	if m == nil {
		return
	}
	m.ApprovalDecisions.WithLabelValues(documentType, decision).Inc()
}

// RecordSubmit counts one submit by outcome
func (m *Metrics) RecordSubmit(documentType, outcome string) {
	if m == nil {
		return
	}
	m.Submits.WithLabelValues(documentType, outcome).Inc()
}

// RecordCatalogLoad counts one catalog load by outcome
func (m *Metrics) RecordCatalogLoad(catalog, outcome string) {
	if m == nil {
		return
	}
	m.CatalogLoads.WithLabelValues(catalog, outcome).Inc()
}
