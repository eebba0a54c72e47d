package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for membership transitions.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// MembershipMetrics records membership transition attempts.
type MembershipMetrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rooms    prometheus.Counter
}

// NewMembershipMetrics registers the membership metrics on the provided registerer.
// A nil registerer yields a recorder that drops every observation.
func NewMembershipMetrics(reg prometheus.Registerer) *MembershipMetrics {
	if reg == nil {
		return &MembershipMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomguard",
		Name:      "membership_transitions_total",
		Help:      "Membership transition attempts by transition and outcome.",
	}, []string{"transition", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "roomguard",
		Name:      "membership_transition_duration_seconds",
		Help:      "Duration of membership transitions in seconds, lock wait included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"transition"})
	rooms := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "roomguard",
		Name:      "rooms_created_total",
		Help:      "Rooms provisioned.",
	})
	reg.MustRegister(attempts, duration, rooms)
	return &MembershipMetrics{
		attempts: attempts,
		duration: duration,
		rooms:    rooms,
	}
}

// ObserveTransition records one attempt with its outcome and duration.
func (m *MembershipMetrics) ObserveTransition(transition, outcome string, took time.Duration) {
	if m == nil || m.attempts == nil {
		return
	}
	transition = normalizeLabel(transition)
	m.attempts.WithLabelValues(transition, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(transition).Observe(took.Seconds())
}

// IncRoomsCreated counts a provisioned room.
func (m *MembershipMetrics) IncRoomsCreated() {
	if m == nil || m.rooms == nil {
		return
	}
	m.rooms.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
