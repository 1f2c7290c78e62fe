// Package metrics holds the process's Prometheus instrumentation and the
// optional operator listener that exposes it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered at declaration time so the daemon and every test
// binary share a single registration in the default registry.
var (
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsswebhook_poll_cycles_total",
			Help: "Completed poll cycles per feed and outcome.",
		},
		[]string{"feed", "status"}, // status: ok, not_modified, fetch_error
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsswebhook_notifications_sent_total",
			Help: "Notifications confirmed delivered.",
		},
		[]string{"feed"},
	)

	NotificationsAbandoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsswebhook_notifications_abandoned_total",
			Help: "Notifications given up on after the attempt budget.",
		},
		[]string{"feed"},
	)

	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsswebhook_delivery_attempts_total",
			Help: "Individual webhook POST attempts, including retries.",
		},
		[]string{"feed"},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsswebhook_fetch_errors_total",
			Help: "Fetch failures after in-adapter retries.",
		},
		[]string{"feed"},
	)

	PersistErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsswebhook_persist_errors_total",
			Help: "Failed state file writes.",
		},
		[]string{"feed"},
	)

	SeenRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rsswebhook_seen_records",
			Help: "Records currently held in each feed's seen store.",
		},
		[]string{"feed"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rsswebhook_fetch_duration_seconds",
			Help:    "Duration of feed fetches.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"feed"},
	)
)
