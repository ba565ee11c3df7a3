package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhookEventsTotal) }

var webhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Webhook deliveries by provider, event type and outcome.",
	},
	[]string{"provider", "event_type", "outcome"}, // outcome: processed|duplicate|failed|bad_signature
)

func IncWebhookEvent(provider, eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(provider), norm(eventType), norm(outcome)).Inc()
}
