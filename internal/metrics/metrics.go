/*
Package metrics defines the Prometheus collectors for the triage service.

Metrics exported (namespace "triage"):

  - incidents_submitted_total: incidents created from submitted logs
  - fixes_applied_total: fixes recorded against open incidents
  - incidents_resolved_total: transitions into resolved
  - analysis_total{tier}: diagnoses by the tier that produced them (pattern, external)
  - external_calls_total{collaborator,outcome}: reasoning/search calls by outcome
  - external_call_duration_seconds{collaborator}: latency of external calls
  - similarity_matches: number of precedents returned per lookup
  - http_requests_total{route,code}: HTTP requests served

All methods are safe on a nil *Metrics, so components can run without metrics.
*/
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "triage"

// External call outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeInvalid = "invalid"
)

type Metrics struct {
	IncidentsSubmitted prometheus.Counter
	FixesApplied       prometheus.Counter
	IncidentsResolved  prometheus.Counter
	Analyses           *prometheus.CounterVec
	ExternalCalls      *prometheus.CounterVec
	ExternalDuration   *prometheus.HistogramVec
	SimilarityMatches  prometheus.Histogram
	HTTPRequests       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IncidentsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_submitted_total",
			Help:      "Incidents created from submitted logs.",
		}),
		FixesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixes_applied_total",
			Help:      "Fixes recorded against open incidents.",
		}),
		IncidentsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_resolved_total",
			Help:      "Incidents transitioned into the resolved state.",
		}),
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_total",
			Help:      "Diagnoses produced, by the tier that produced them.",
		}, []string{"tier"}),
		ExternalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Calls to external reasoning and search services, by outcome.",
		}, []string{"collaborator", "outcome"}),
		ExternalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Latency of external reasoning and search calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"collaborator"}),
		SimilarityMatches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "similarity_matches",
			Help:      "Resolved precedents returned per similarity lookup.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.IncidentsSubmitted, m.FixesApplied, m.IncidentsResolved, m.Analyses,
			m.ExternalCalls, m.ExternalDuration, m.SimilarityMatches, m.HTTPRequests,
		)
	}
	return m
}

func (m *Metrics) Submitted() {
	if m != nil {
		m.IncidentsSubmitted.Inc()
	}
}

func (m *Metrics) FixApplied() {
	if m != nil {
		m.FixesApplied.Inc()
	}
}

func (m *Metrics) Resolved() {
	if m != nil {
		m.IncidentsResolved.Inc()
	}
}

func (m *Metrics) Analysis(tier string) {
	if m != nil {
		m.Analyses.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) ExternalCall(collaborator, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ExternalCalls.WithLabelValues(collaborator, outcome).Inc()
	if took > 0 {
		m.ExternalDuration.WithLabelValues(collaborator).Observe(took.Seconds())
	}
}

func (m *Metrics) Matches(n int) {
	if m != nil {
		m.SimilarityMatches.Observe(float64(n))
	}
}

func (m *Metrics) Request(route string, code int) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(route, statusText(code)).Inc()
	}
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
