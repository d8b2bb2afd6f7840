package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	actionsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_engine_actions_submitted_total",
			Help: "Total number of accepted actions by submission discipline.",
		},
		[]string{"discipline"},
	)

	actionsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_engine_actions_completed_total",
			Help: "Total number of completed actions by outcome.",
		},
		[]string{"outcome"},
	)

	actionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anvil_engine_action_duration_seconds",
			Help:    "Time spent running the run and done callbacks of an action.",
			Buckets: prometheus.DefBuckets,
		},
	)

	queueWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anvil_engine_queue_wait_seconds",
			Help:    "Time an action spent in the global queue before hand-off.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anvil_engine_queue_depth",
			Help: "Number of actions waiting in the global queue.",
		},
	)

	workersByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "anvil_engine_workers",
			Help: "Number of pool workers by state.",
		},
		[]string{"state"},
	)

	maxThreads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anvil_engine_max_threads",
			Help: "Configured upper bound of the worker pool.",
		},
	)
)

func init() {
	prometheus.MustRegister(actionsSubmitted)
	prometheus.MustRegister(actionsCompleted)
	prometheus.MustRegister(actionDuration)
	prometheus.MustRegister(queueWait)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(workersByState)
	prometheus.MustRegister(maxThreads)
}
