// Package metrics exposes the server's Prometheus counters and
// histograms, grouped by group_id the way the reference cdc-sink stage
// metrics group by table.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var groupLabels = []string{"group_id"}

var (
	MessagesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconsync",
		Name:      "messages_applied_total",
		Help:      "number of messages actually inserted (not ignored as duplicates) into a group's log",
	}, groupLabels)

	SyncRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconsync",
		Name:      "sync_rounds_total",
		Help:      "number of POST /sync requests handled per group",
	}, groupLabels)

	SyncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconsync",
		Name:      "sync_errors_total",
		Help:      "number of POST /sync requests that failed per group",
	}, groupLabels)

	DiffDepth = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reconsync",
		Name:      "merkle_diff_depth",
		Help:      "number of base-N digits in the key of the millis value a merkle diff returned",
		Buckets:   prometheus.LinearBuckets(0, 2, 12),
	}, groupLabels)

	LateMessagesReturned = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reconsync",
		Name:      "late_messages_returned",
		Help:      "number of messages returned to a client per sync round",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	}, groupLabels)
)
