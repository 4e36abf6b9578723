// Package metrics carries the prometheus instrumentation and the best-effort
// sink fed by session actors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/necpgame/combat-session-engine/internal/engine"
)

// Sink receives resolved entries after they are durably appended. Recording
// is best-effort and must never block a session.
type Sink interface {
	Record(sessionID string, entries []engine.Entry)
	RecordRetry()
	ObserveResolve(d time.Duration)
}

// NopSink discards everything; used when no registry is wired.
type NopSink struct{}

func (NopSink) Record(string, []engine.Entry) {}
func (NopSink) RecordRetry() {}
func (NopSink) ObserveResolve(time.Duration) {}

type Metrics struct {
	registry *prometheus.Registry

	SessionsCreated    prometheus.Counter
	SessionsCompleted  prometheus.Counter
	SessionsAborted    prometheus.Counter
	ActionsResolved    *prometheus.CounterVec
	CompensatedActions prometheus.Counter
	TurnsSkipped       prometheus.Counter
	PersistRetries     prometheus.Counter
	ResolveDuration    prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "combat_sessions_created_total",
			Help: "Total combat sessions created",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "combat_sessions_completed_total",
			Help: "Total combat sessions completed",
		}),
		SessionsAborted: factory.NewCounter(prometheus.CounterOpts{
			Name: "combat_sessions_aborted_total",
			Help: "Total combat sessions aborted",
		}),
		ActionsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "combat_actions_resolved_total",
			Help: "Total actions resolved, by kind",
		}, []string{"kind"}),
		CompensatedActions: factory.NewCounter(prometheus.CounterOpts{
			Name: "combat_compensated_actions_total",
			Help: "Total lag-compensated action resolutions",
		}),
		TurnsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "combat_turns_skipped_total",
			Help: "Total turns auto-skipped on deadline",
		}),
		PersistRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "combat_persist_retries_total",
			Help: "Total retried event log writes",
		}),
		ResolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "combat_resolve_duration_seconds",
			Help:    "Duration of action resolution including persistence",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRetry() { m.PersistRetries.Inc() }

func (m *Metrics) ObserveResolve(d time.Duration) { m.ResolveDuration.Observe(d.Seconds()) }

// Record implements Sink over the prometheus counters.
func (m *Metrics) Record(_ string, entries []engine.Entry) {
	for _, e := range entries {
		switch e.Kind {
		case engine.EntryActionResolved:
			m.ActionsResolved.WithLabelValues(string(e.Action)).Inc()
			if e.Compensated {
				m.CompensatedActions.Inc()
			}
		case engine.EntryTurnSkipped:
			m.TurnsSkipped.Inc()
		case engine.EntrySessionCompleted:
			m.SessionsCompleted.Inc()
		case engine.EntrySessionAborted:
			m.SessionsAborted.Inc()
		}
	}
}
