package alert

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the alert service.
type Metrics struct {
	MutationsTotal   *prometheus.CounterVec
	SnapshotsTotal   *prometheus.CounterVec
	SnapshotAlerts   prometheus.Histogram
	ChangesPublished *prometheus.CounterVec
	SnoozesReleased  prometheus.Counter
	AlertsCreated    *prometheus.CounterVec
}

// NewMetrics registers and returns alert metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bosun_alert_mutations_total",
			Help: "Alert mutations by operation and result.",
		}, []string{"op", "result"}),
		SnapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bosun_alert_snapshots_total",
			Help: "Active alert snapshots by view and result.",
		}, []string{"view", "result"}),
		SnapshotAlerts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bosun_alert_snapshot_size",
			Help:    "Alerts returned per snapshot.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
		}),
		ChangesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bosun_alert_changes_published_total",
			Help: "Change events published to the invalidation feed by result.",
		}, []string{"result"}),
		SnoozesReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bosun_alert_snooze_release_tenants_total",
			Help: "Tenants whose expired snoozes were returned to open by the sweeper.",
		}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bosun_alerts_created_total",
			Help: "Alerts created by producers, by severity.",
		}, []string{"severity"}),
	}

	reg.MustRegister(
		m.MutationsTotal,
		m.SnapshotsTotal,
		m.SnapshotAlerts,
		m.ChangesPublished,
		m.SnoozesReleased,
		m.AlertsCreated,
	)

	return m
}

// ResultLabel maps an operation error onto a low-cardinality metric label.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrSnoozeLimitExceeded):
		return "snooze_limit"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTransientIO):
		return "transient"
	default:
		return "error"
	}
}
