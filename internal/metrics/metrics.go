package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"trivia-engine/internal/domain"
)

const namespace = "trivia"

// Metrics records session lifecycle counters. A nil *Metrics is a no-op.
type Metrics struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	answers  *prometheus.CounterVec
	finalize *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions for which a start was requested.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Sessions that reached a terminal status.",
		}, []string{"status", "reason"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Evaluated answers by result.",
		}, []string{"result"}),
		finalize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_total",
			Help:      "Final score reports sent to the scoring authority.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.started, m.finished, m.answers, m.finalize)
	return m
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
}

func (m *Metrics) SessionFinished(status domain.Status, reason domain.Reason) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(string(status), string(reason)).Inc()
}

func (m *Metrics) Answer(correct bool) {
	if m == nil {
		return
	}
	result := "incorrect"
	if correct {
		result = "correct"
	}
	m.answers.WithLabelValues(result).Inc()
}

func (m *Metrics) Finalized(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.finalize.WithLabelValues(result).Inc()
}
