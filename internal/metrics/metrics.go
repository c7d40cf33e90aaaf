// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socialsync",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "socialsync",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "socialsync",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-user rate limiter.",
		},
	)

	Interactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socialsync",
			Name:      "interactions_total",
			Help:      "Interaction engine operations by kind (like_added, comment_added, message_sent, ...).",
		},
		[]string{"op"},
	)

	NotificationsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socialsync",
			Name:      "notifications_emitted_total",
			Help:      "Notifications written, by type.",
		},
		[]string{"type"},
	)

	PushDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socialsync",
			Name:      "push_deliveries_total",
			Help:      "Push messages handed to the provider, by provider and result.",
		},
		[]string{"provider", "result"},
	)

	WorkerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socialsync",
			Name:      "worker_events_total",
			Help:      "Stream events handled by workers, by type and result.",
		},
		[]string{"type", "result"},
	)

	Subscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "socialsync",
			Name:      "active_subscriptions",
			Help:      "Open WebSocket subscriptions by channel kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequests,
		HTTPDuration,
		RateLimited,
		Interactions,
		NotificationsEmitted,
		PushDeliveries,
		WorkerEvents,
		Subscriptions,
	)
}

// Result labels a success or failure counter.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
