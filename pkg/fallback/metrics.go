package fallback

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tierLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "haven_fallback_tier_latency_seconds",
			Help: "Latency of individual fallback tier attempts",
		},
		[]string{"capability", "tier"},
	)

	tierAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_fallback_tier_attempts_total",
			Help: "Fallback tier attempts by result",
		},
		[]string{"capability", "tier", "result"},
	)

	chainServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_fallback_served_total",
			Help: "Which tier ultimately served each chain run",
		},
		[]string{"capability", "tier"},
	)
)

func observeTier(capability, tier string, elapsed time.Duration, ok bool) {
	tierLatency.WithLabelValues(capability, tier).Observe(elapsed.Seconds())
	result := "failure"
	if ok {
		result = "success"
	}
	tierAttempts.WithLabelValues(capability, tier, result).Inc()
}

func observeServed(capability, tier string) {
	chainServed.WithLabelValues(capability, tier).Inc()
}
