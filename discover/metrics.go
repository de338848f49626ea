package discover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discv5",
		Subsystem: "service",
		Name:      "messages_received_total",
		Help:      "Protocol messages handled, by message name.",
	}, []string{"kind"})

	requestsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discv5",
		Subsystem: "service",
		Name:      "requests_sent_total",
		Help:      "Outbound requests registered, by message name.",
	}, []string{"kind"})

	lookupsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "discv5",
		Subsystem: "service",
		Name:      "lookups_started_total",
		Help:      "Iterative lookups started.",
	})

	evictionsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "discv5",
		Subsystem: "table",
		Name:      "evictions_applied_total",
		Help:      "Routing table entries replaced after a failed probe.",
	})
)
