package alertsync

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/bosun/internal/alert"
)

// Trigger names what caused a refresh.
type Trigger string

const (
	TriggerInitial Trigger = "initial"
	TriggerPoll    Trigger = "poll"
	TriggerPush    Trigger = "push"
)

// SessionHooks observes session activity. Nil funcs are skipped.
type SessionHooks struct {
	OnStart     func()
	OnStop      func()
	OnRefresh   func(trigger Trigger, duration float64, err error)
	OnSubscribe func(err error)
}

// Metrics holds Prometheus metrics for sync sessions.
type Metrics struct {
	SessionsActive  prometheus.Gauge
	RefreshesTotal  *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec
	SubscribesTotal *prometheus.CounterVec
}

// NewMetrics registers and returns sync metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bosun_sync_sessions_active",
			Help: "Sync sessions currently running.",
		}),
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bosun_sync_refreshes_total",
			Help: "Snapshot refreshes by trigger and result.",
		}, []string{"trigger", "result"}),
		RefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bosun_sync_refresh_duration_seconds",
			Help:    "Duration of snapshot refreshes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"trigger"}),
		SubscribesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bosun_sync_subscribes_total",
			Help: "Feed subscription attempts by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.SessionsActive,
		m.RefreshesTotal,
		m.RefreshDuration,
		m.SubscribesTotal,
	)

	return m
}

// Hooks returns SessionHooks that update the corresponding metrics.
func (m *Metrics) Hooks() SessionHooks {
	return SessionHooks{
		OnStart: m.SessionsActive.Inc,
		OnStop:  m.SessionsActive.Dec,
		OnRefresh: func(trigger Trigger, duration float64, err error) {
			m.RefreshesTotal.WithLabelValues(string(trigger), alert.ResultLabel(err)).Inc()
			m.RefreshDuration.WithLabelValues(string(trigger)).Observe(duration)
		},
		OnSubscribe: func(err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.SubscribesTotal.WithLabelValues(result).Inc()
		},
	}
}
