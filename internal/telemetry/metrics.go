package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "live_quiz"

var (
	// Transitions counts session lifecycle operations by outcome ("ok" or an error code).
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Session lifecycle transitions by operation and outcome.",
	}, []string{"op", "outcome"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answer_submissions_total",
		Help:      "Answer submissions by outcome.",
	}, []string{"outcome"})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_subscribers",
		Help:      "Currently attached realtime subscribers.",
	})

	Evictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_evictions_total",
		Help:      "Subscribers dropped because their queue was full.",
	})

	Published = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_events_total",
		Help:      "Events published to session outboxes by kind.",
	}, []string{"kind"})
)
