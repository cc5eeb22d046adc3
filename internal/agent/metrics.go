package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brightthread_dialogue_turns_total",
		Help: "Dialogue turns processed, by routed intent.",
	}, []string{"intent"})

	policyDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brightthread_policy_decisions_total",
		Help: "Policy evaluations, by decision.",
	}, []string{"decision"})

	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brightthread_modification_executions_total",
		Help: "Modification execution attempts, by outcome.",
	}, []string{"outcome"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "brightthread_dialogue_turn_duration_seconds",
		Help:    "Wall time per dialogue turn, including LLM calls.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
