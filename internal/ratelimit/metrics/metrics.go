package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enroll_ratelimit_decisions_total",
			Help: "Rate limit permit decisions by policy and outcome",
		}, []string{"policy", "outcome"}),
	}
}

func (m *Metrics) RecordDecision(policy string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "granted"
	}
	m.Decisions.WithLabelValues(policy, outcome).Inc()
}
