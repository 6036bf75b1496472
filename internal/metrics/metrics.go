// Package metrics holds the Prometheus instruments for conversation
// turns and provider calls. All recording methods are nil-safe so
// components can run without metrics in tests and one-shot commands.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "codefusion"

// Turn outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
)

// Agenda results for a single turn.
const (
	AgendaReplaced  = "replaced"
	AgendaUnchanged = "unchanged"
	AgendaMalformed = "malformed"
)

// Metrics is the set of instruments exported by the service.
type Metrics struct {
	TurnsTotal            *prometheus.CounterVec
	AgendaResultsTotal    *prometheus.CounterVec
	ConversationsStarted  prometheus.Counter
	ConversationsFinished prometheus.Counter
	UpstreamSeconds       *prometheus.HistogramVec
	UpstreamErrorsTotal   *prometheus.CounterVec
	AudioRejectionsTotal  *prometheus.CounterVec
	ProviderUp            *prometheus.GaugeVec
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Conversation turns processed, by outcome",
			},
			[]string{"outcome"},
		),
		AgendaResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agenda_results_total",
				Help:      "Agenda extraction result per turn",
			},
			[]string{"result"},
		),
		ConversationsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversations_started_total",
				Help:      "Preparation conversations created",
			},
		),
		ConversationsFinished: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversations_finished_total",
				Help:      "Preparation conversations that reached the end marker",
			},
		),
		UpstreamSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_seconds",
				Help:      "Latency of model provider calls",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
			},
			[]string{"op"},
		),
		UpstreamErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Failed model provider calls",
			},
			[]string{"op"},
		),
		AudioRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audio_rejections_total",
				Help:      "Audio uploads rejected before transcription",
			},
			[]string{"reason"},
		),
		ProviderUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_up",
				Help:      "Whether the last probe of a model provider succeeded",
			},
			[]string{"provider"},
		),
	}
}

// Turn records one processed turn.
func (m *Metrics) Turn(outcome, agendaResult string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.AgendaResultsTotal.WithLabelValues(agendaResult).Inc()
}

// Upstream records the latency and outcome of one provider call.
func (m *Metrics) Upstream(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.UpstreamSeconds.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.UpstreamErrorsTotal.WithLabelValues(op).Inc()
	}
}

// Started counts a newly created conversation.
func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.ConversationsStarted.Inc()
}

// Finished counts a conversation transitioning to finished.
func (m *Metrics) Finished() {
	if m == nil {
		return
	}
	m.ConversationsFinished.Inc()
}

// AudioRejected counts an upload refused before transcription.
func (m *Metrics) AudioRejected(reason string) {
	if m == nil {
		return
	}
	m.AudioRejectionsTotal.WithLabelValues(reason).Inc()
}

// ProviderState records the reachability of a model provider. Its
// signature matches the connwatch transition callback.
func (m *Metrics) ProviderState(provider string, up bool, _ error) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.ProviderUp.WithLabelValues(provider).Set(v)
}
