package challenges

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_events_dispatched_total",
			Help: "Total number of events dispatched onto a challenge bus",
		},
		[]string{"kind"},
	)
	batchesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_batches_processed_total",
			Help: "Total number of event batches processed by challenge managers",
		},
		[]string{"challenge_id", "outcome"},
	)
	completions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_completions_total",
			Help: "Total number of user challenges that became complete",
		},
		[]string{"challenge_id"},
	)
	flushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challenge_flush_duration_seconds",
			Help:    "Duration of challenge bus flushes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	trendingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trending_challenge_runs_total",
			Help: "Total number of trending challenge enqueue attempts",
		},
		[]string{"outcome"},
	)
)

// InitPrometheus registers the engine metrics. Call this from main.go
func InitPrometheus(reg prometheus.Registerer) {
	reg.MustRegister(eventsDispatched)
	reg.MustRegister(batchesProcessed)
	reg.MustRegister(completions)
	reg.MustRegister(flushDuration)
	reg.MustRegister(trendingRuns)
}
