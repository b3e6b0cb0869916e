// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	Authorizations *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	WebhookEvents  *prometheus.CounterVec
	RateLimited    prometheus.Counter
}

// NewMetrics creates and registers the gateway collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visioncore_authorizations_total",
			Help: "Authorization decisions by feature and outcome.",
		}, []string{"feature", "outcome"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visioncore_request_duration_seconds",
			Help:    "End-to-end request latency by feature.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"feature"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visioncore_webhook_events_total",
			Help: "Billing webhook events by kind and result.",
		}, []string{"kind", "result"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visioncore_rate_limited_total",
			Help: "Requests rejected by the per-tier rate limiter.",
		}),
	}

	reg.MustRegister(m.Authorizations, m.RequestLatency, m.WebhookEvents, m.RateLimited)
	return m
}
