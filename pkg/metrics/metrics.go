// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webpilot"

// Run outcomes recorded by RunsFinished.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_started_total",
		Help:      "Agent runs admitted by the supervisor.",
	})
	RunsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_rejected_total",
		Help:      "Run requests rejected because a run was already in flight.",
	})
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_finished_total",
		Help:      "Agent runs that reached teardown, by outcome.",
	}, []string{"outcome"})
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time from admission to teardown.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
	RunActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_active",
		Help:      "1 while an agent run is in flight.",
	})

	Observers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "observers",
		Help:      "Connected stream observers.",
	})
	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_broadcast_total",
		Help:      "Events fanned out to observers, by type.",
	}, []string{"type"})
	ObserverEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observer_evictions_total",
		Help:      "Observers dropped by the hub, by reason.",
	}, []string{"reason"})

	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_captured_total",
		Help:      "Screenshots captured by snapshot pollers.",
	})
	FramesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_skipped_total",
		Help:      "Snapshot frames not captured or not delivered, by reason.",
	}, []string{"reason"})

	AgentSteps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_steps_total",
		Help:      "Agent loop steps executed.",
	})
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "Chat completion requests, by provider and outcome.",
	}, []string{"provider", "outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
