// Package metrics exposes Prometheus metrics for the forwarding daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popfetch_polls_total",
			Help: "Total number of account polls",
		},
		[]string{"account", "result"},
	)

	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "popfetch_poll_duration_seconds",
			Help:    "Duration of account polls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"account"},
	)

	MessagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popfetch_messages_fetched_total",
			Help: "Total number of new messages fetched",
		},
		[]string{"account"},
	)

	MessagesForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popfetch_messages_forwarded_total",
			Help: "Total number of messages forwarded",
		},
		[]string{"account", "result"},
	)
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
