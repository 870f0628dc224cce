// Package metrics registers the feed service's Prometheus collectors on the
// default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reelfeed"

var (
	// WebhookUpdates counts webhook deliveries by outcome: inserted,
	// duplicate, unauthorized, failed, or a rejection reason.
	WebhookUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_updates_total",
		Help:      "webhook deliveries by outcome",
	}, []string{"outcome"})

	PagesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_pages_total",
		Help:      "feed pages served by status",
	}, []string{"status"})

	PageSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "feed_page_items",
		Help:      "items per served feed page",
		Buckets:   []float64{0, 1, 5, 10, 20, 30, 50},
	})

	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_resolutions_total",
		Help:      "file handle resolutions by status",
	}, []string{"status"})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "media_resolve_seconds",
		Help:      "upstream getFile latency",
		Buckets:   prometheus.DefBuckets,
	})

	ProxiedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_proxied_bytes_total",
		Help:      "bytes streamed through the signed media proxy",
	})
)
