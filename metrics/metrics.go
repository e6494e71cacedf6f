// Package metrics holds the Prometheus counters exported by the service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rental"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status class.",
		},
		[]string{"route", "status"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stripe_webhook_events_total",
			Help:      "Stripe webhook events by type and result.",
		},
		[]string{"type", "result"},
	)

	intents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intents_total",
			Help:      "Payment intents prepared by kind and action.",
		},
		[]string{"kind", "action"},
	)

	importRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_records_total",
			Help:      "Feed records imported by source and result.",
		},
		[]string{"source", "result"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications delivered by channel and result.",
		},
		[]string{"channel", "result"},
	)
)

// Register registers the collectors in the default registry. Safe to call
// multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, webhookEvents, intents, importRecords, notificationsSent)
	})
}

// IncHTTP counts a served request.
func IncHTTP(route, status string) {
	httpRequests.WithLabelValues(route, status).Inc()
}

// IncWebhook counts a processed webhook event.
func IncWebhook(eventType, result string) {
	webhookEvents.WithLabelValues(eventType, result).Inc()
}

// IncIntent counts a prepared payment intent.
func IncIntent(kind, action string) {
	intents.WithLabelValues(kind, action).Inc()
}

// IncImport counts an imported feed record.
func IncImport(source, result string) {
	importRecords.WithLabelValues(source, result).Inc()
}

// IncNotification counts a notification delivery attempt.
func IncNotification(channel, result string) {
	notificationsSent.WithLabelValues(channel, result).Inc()
}
