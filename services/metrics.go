package services

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokefree_events_ingested_total",
			Help: "Count events and journal entries received, split by first delivery and redelivery",
		},
		[]string{"kind", "result"},
	)
	evaluatorRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokefree_evaluator_runs_total",
			Help: "Evaluator invocations by outcome",
		},
		[]string{"trigger", "outcome"},
	)
	achievementsAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokefree_achievements_awarded_total",
			Help: "Achievements persisted for the first time",
		},
		[]string{"category"},
	)
	punishmentsTriggered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smokefree_punishments_triggered_total",
			Help: "Evaluations that produced a punishment prompt",
		},
	)
	notificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokefree_notifications_dispatched_total",
			Help: "Notification dispatch results",
		},
		[]string{"status"},
	)
)

// RegisterMetrics registers the service-level collectors. Call once from main.go
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		eventsIngested,
		evaluatorRuns,
		achievementsAwarded,
		punishmentsTriggered,
		notificationsDispatched,
	)
}
