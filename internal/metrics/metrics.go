// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for SourceRequests.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	SourceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "book_finder_source_requests_total",
		Help: "Upstream source calls by source and outcome",
	}, []string{"source", "outcome"})

	SourceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "book_finder_source_request_duration_seconds",
		Help:    "Duration of upstream source calls in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	SearchFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "book_finder_search_fallbacks_total",
		Help: "Degraded paths taken by the aggregator",
	}, []string{"kind"})

	SearchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "book_finder_search_results",
		Help:    "Number of books returned per aggregated search",
		Buckets: []float64{0, 1, 5, 10, 20, 40, 80},
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "book_finder_http_requests_total",
		Help: "Total number of HTTP requests served",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "book_finder_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})
)

// ObserveSource records one upstream call.
func ObserveSource(source string, start time.Time, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	SourceRequests.WithLabelValues(source, outcome).Inc()
	SourceDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}
