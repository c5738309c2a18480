package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts Stripe webhook requests by event type and outcome.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutrixpert",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and outcome.",
	}, []string{"event_type", "outcome"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nutrixpert",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// TransitionsTotal counts applied access state transitions by source and cause.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutrixpert",
		Subsystem: "access",
		Name:      "transitions_total",
		Help:      "Applied access state transitions by source and cause.",
	}, []string{"source", "cause"})

	// EmailDeliveriesTotal counts notification email attempts by kind and result.
	EmailDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutrixpert",
		Subsystem: "notify",
		Name:      "email_deliveries_total",
		Help:      "Notification email delivery attempts by kind and result (sent/retry/failed).",
	}, []string{"kind", "result"})

	// DispatchFailuresTotal counts notifications that could not be handed to the queue.
	DispatchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nutrixpert",
		Subsystem: "notify",
		Name:      "dispatch_failures_total",
		Help:      "Notifications whose email job could not be enqueued.",
	})

	// GuardDecisionsTotal counts access checks by decision.
	GuardDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutrixpert",
		Subsystem: "access",
		Name:      "guard_decisions_total",
		Help:      "Access guard decisions by entitlement result.",
	}, []string{"entitled"})
)
