package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookmylawn"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		},
		[]string{"endpoint", "code"},
	)

	snapshotsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_applied_total",
			Help:      "Snapshots applied to derived views.",
		},
		[]string{"view"},
	)

	subscriptionRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_restarts_total",
			Help:      "Resubscriptions after a change channel failure.",
		},
		[]string{"view"},
	)

	activeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Live record store subscriptions.",
		},
	)

	writeRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_retries_total",
			Help:      "Retried record store writes by operation.",
		},
		[]string{"op"},
	)

	botUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_updates_total",
			Help:      "Telegram updates by command.",
		},
		[]string{"command"},
	)

	outboxDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox events by final result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			snapshotsApplied,
			subscriptionRestarts,
			activeSubscriptions,
			writeRetries,
			botUpdates,
			outboxDelivered,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncSnapshotApplied(view string) {
	snapshotsApplied.WithLabelValues(view).Inc()
}

func IncSubscriptionRestart(view string) {
	subscriptionRestarts.WithLabelValues(view).Inc()
}

func SubscriptionOpened() { activeSubscriptions.Inc() }

func SubscriptionClosed() { activeSubscriptions.Dec() }

func IncWriteRetry(op string) {
	writeRetries.WithLabelValues(op).Inc()
}

func IncBotUpdate(command string) {
	botUpdates.WithLabelValues(command).Inc()
}

func IncOutbox(result string) {
	outboxDelivered.WithLabelValues(result).Inc()
}
