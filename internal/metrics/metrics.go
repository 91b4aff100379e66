package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the agent's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Notifications *prometheus.CounterVec
	QueueDepth    *prometheus.GaugeVec
	DrainEntries  *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	TiersFired    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safezone_notifications_total",
				Help: "Notification attempts by class and outcome",
			},
			[]string{"class", "outcome"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "safezone_queue_depth",
				Help: "Entries currently persisted per delivery queue",
			},
			[]string{"queue"},
		),
		DrainEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safezone_drain_entries_total",
				Help: "Drain outcomes per queue entry",
			},
			[]string{"queue", "outcome"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safezone_geofence_transitions_total",
				Help: "Geofence enter/exit transitions",
			},
			[]string{"type"},
		),
		TiersFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safezone_escalation_tier_total",
				Help: "Escalation tier notifications fired",
			},
			[]string{"tier"},
		),
	}
	m.Registry.MustRegister(
		m.Notifications,
		m.QueueDepth,
		m.DrainEntries,
		m.Transitions,
		m.TiersFired,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
