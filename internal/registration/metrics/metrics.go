package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SessionsStarted    *prometheus.CounterVec
	CodesDispatched    *prometheus.CounterVec
	VerificationChecks *prometheus.CounterVec
	SessionsCompleted  prometheus.Counter
	WriteConflicts     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enroll_registration_sessions_started_total",
			Help: "Registration sessions started, by channel and whether an active session was reused",
		}, []string{"channel", "reused"}),
		CodesDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enroll_registration_codes_dispatched_total",
			Help: "Verification code dispatch attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		VerificationChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enroll_registration_verification_checks_total",
			Help: "Verification code checks by outcome",
		}, []string{"outcome"}),
		SessionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enroll_registration_sessions_completed_total",
			Help: "Registration sessions completed",
		}),
		WriteConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enroll_registration_session_write_conflicts_total",
			Help: "Conditional session writes retried after losing a race",
		}),
	}
}
