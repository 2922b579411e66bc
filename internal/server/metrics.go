package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors. A single instance is
// created at startup and threaded through the dispatcher and pipeline.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	CacheLookups       *prometheus.CounterVec
	RateLimitRejects   prometheus.Counter
	QuotaDenials       prometheus.Counter
	PipelineStageFails *prometheus.CounterVec
	JobsEnqueued       *prometheus.CounterVec
}

// NewMetrics registers the gateway collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Requests processed, by route and status code.",
		}, []string{"route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Request processing time by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_lookups_total",
			Help: "Response cache lookups, by outcome (hit or miss).",
		}, []string{"outcome"}),
		RateLimitRejects: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ratelimit_rejected_total",
			Help: "Requests rejected by the fixed-window rate limiter.",
		}),
		QuotaDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_quota_denials_total",
			Help: "Content creations denied by the daily quota check.",
		}),
		PipelineStageFails: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_pipeline_stage_failures_total",
			Help: "Pipeline stage failures, by stage name.",
		}, []string{"stage"}),
		JobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_jobs_enqueued_total",
			Help: "Background jobs enqueued, by job type.",
		}, []string{"type"}),
	}
}
