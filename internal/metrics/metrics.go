package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MissionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "missionbox_missions_created_total",
		Help: "Successfully created missions.",
	})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missionbox_status_transitions_total",
		Help: "Successful mission status transitions, by target status.",
	}, []string{"status"})

	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "missionbox_accept_conflicts_total",
		Help: "Accept calls that lost the race or targeted a non-pending mission.",
	})

	TrackingLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missionbox_tracking_lookups_total",
		Help: "Public tracking-number lookups, by result.",
	}, []string{"result"})
)
