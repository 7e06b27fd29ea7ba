package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qabrowser",
		Subsystem: "relay",
		Name:      "sessions_active",
		Help:      "Test sessions with at least one subscriber.",
	})
	metricSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qabrowser",
		Subsystem: "relay",
		Name:      "subscribers_active",
		Help:      "Connected subscriber channels.",
	})
	metricConnections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qabrowser",
		Subsystem: "relay",
		Name:      "connections_total",
		Help:      "Subscriber channels ever registered.",
	})
	metricBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qabrowser",
		Subsystem: "relay",
		Name:      "broadcasts_total",
		Help:      "Events delivered to at least one subscriber, by type.",
	}, []string{"type"})
	metricPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qabrowser",
		Subsystem: "relay",
		Name:      "channels_pruned_total",
		Help:      "Subscribers dropped after a failed send.",
	})
	metricRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qabrowser",
		Subsystem: "relay",
		Name:      "upgrades_rate_limited_total",
		Help:      "Websocket upgrade attempts rejected by the rate limiter.",
	})
)
