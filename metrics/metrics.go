// Package metrics exposes prometheus collectors for the session controller.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jobboard"

// Refresh outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"

	// The session that started the refresh ended before it finished
	OutcomeDiscarded = "discarded"
)

type Metrics struct {
	refreshes      *prometheus.CounterVec
	attempts       prometheus.Counter
	coalesced      prometheus.Counter
	inflight       prometheus.Gauge
	transitions    *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Completed token refresh operations by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_attempts_total",
			Help:      "Refresh calls sent to the backend, including retries.",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_coalesced_total",
			Help:      "Callers that joined an in-flight refresh instead of starting one.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_in_flight",
			Help:      "1 while a refresh is in flight.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "state_transitions_total",
			Help:      "Session state transitions.",
		}, []string{"from", "to"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Route admission decisions.",
		}, []string{"decision"}),
	}

	if reg != nil {
		reg.MustRegister(m.refreshes, m.attempts, m.coalesced, m.inflight, m.transitions, m.guardDecisions)
	}
	return m
}

// Handler serves the collectors of reg in the prometheus text format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *Metrics) RefreshStarted() {
	if m == nil {
		return
	}
	m.inflight.Set(1)
}

func (m *Metrics) RefreshAttempt() {
	if m == nil {
		return
	}
	m.attempts.Inc()
}

func (m *Metrics) RefreshFinished(outcome string) {
	if m == nil {
		return
	}
	m.inflight.Set(0)
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RefreshCoalesced() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) GuardDecision(decision string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(decision).Inc()
}
