package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n2nmaid_supervisor_transitions_total",
			Help: "Connection state transitions, by source status, target status and event",
		},
		[]string{"from", "to", "event"},
	)

	spawnFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "n2nmaid_supervisor_spawn_failures_total",
			Help: "Edge processes that could not be started",
		},
	)

	logRecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "n2nmaid_supervisor_log_records_dropped_total",
			Help: "Log records overwritten in the bounded log buffer",
		},
	)

	// statusGauge holds the numeric status of the most recently transitioned
	// supervisor: 0 disconnected, 1 connecting, 2 connected, 3 disconnecting, 4 error.
	statusGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "n2nmaid_supervisor_status",
			Help: "Current connection status (0 disconnected, 1 connecting, 2 connected, 3 disconnecting, 4 error)",
		},
	)
)
