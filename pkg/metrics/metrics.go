// Package metrics exposes the orchestrator's Prometheus instruments on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "support_orchestrator"

// Recorder is nil-safe: every method is a no-op on a nil receiver.
type Recorder struct {
	registry    *prometheus.Registry
	turns       *prometheus.CounterVec
	nodeLatency *prometheus.HistogramVec
	oracleCalls *prometheus.CounterVec
	dialogs     *prometheus.CounterVec
	escalations *prometheus.CounterVec
	notices     *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns handled, by terminal route.",
		}, []string{"agent", "result"}),
		nodeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Latency of graph step functions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Oracle completions by agent and status.",
		}, []string{"agent", "status"}),
		dialogs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_outcomes_total",
			Help:      "Guided interview outcomes.",
		}, []string{"kind", "outcome"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Human handoffs by urgency.",
		}, []string{"urgency"}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_notices_total",
			Help:      "Escalation notifications delivered, by channel and status.",
		}, []string{"channel", "status"}),
	}
	reg.MustRegister(r.turns, r.nodeLatency, r.oracleCalls, r.dialogs, r.escalations, r.notices)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Turn(agent, result string) {
	if r == nil {
		return
	}
	r.turns.WithLabelValues(agent, result).Inc()
}

// ObserveNode returns a func that records the elapsed time for node when called.
func (r *Recorder) ObserveNode(node string) func() {
	if r == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		r.nodeLatency.WithLabelValues(node).Observe(time.Since(start).Seconds())
	}
}

func (r *Recorder) OracleCall(agent, status string) {
	if r == nil {
		return
	}
	r.oracleCalls.WithLabelValues(agent, status).Inc()
}

func (r *Recorder) DialogOutcome(kind, outcome string) {
	if r == nil {
		return
	}
	r.dialogs.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) Escalation(urgency string) {
	if r == nil {
		return
	}
	r.escalations.WithLabelValues(urgency).Inc()
}

func (r *Recorder) Notice(channel, status string) {
	if r == nil {
		return
	}
	r.notices.WithLabelValues(channel, status).Inc()
}
