package services

import "github.com/prometheus/client_golang/prometheus"

var (
	proposalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_proposals_total",
			Help: "Device scans handled by admission control, by outcome.",
		},
		[]string{"result"},
	)
	sessionsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_sessions_closed_total",
			Help: "Sessions moved to a terminal status.",
		},
		[]string{"status"},
	)
	operationsApprovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_operations_approved_total",
			Help: "Pending operations promoted to history, by operation type.",
		},
		[]string{"type"},
	)
	janitorPrunedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_janitor_pruned_total",
			Help: "Rows removed by the maintenance janitor, by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(proposalsTotal, sessionsClosedTotal, operationsApprovedTotal, janitorPrunedTotal)
}
