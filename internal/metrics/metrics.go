// Package metrics holds the Prometheus collectors shared by the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream kinds.
const (
	KindFeed       = "feed"
	KindChannel    = "channel"
	KindTranscript = "transcript"
	KindExtract    = "extract"
	KindLLM        = "llm"
)

var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "termread",
		Name:      "upstream_requests_total",
		Help:      "Upstream calls by kind and result.",
	}, []string{"kind", "result"})

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "termread",
		Name:      "upstream_duration_seconds",
		Help:      "Upstream call latency by kind.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"kind"})

	// RateLimited counts inbound requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "termread",
		Name:      "rate_limited_total",
		Help:      "Inbound requests rejected by the rate limiter.",
	})
)

// Observe records one upstream call that started at start.
func Observe(kind string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	upstreamRequests.WithLabelValues(kind, result).Inc()
	upstreamDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
