package alertapi

import (
	"time"

	"github.com/linnemanlabs/bosun/internal/alert"
)

// alertView is an alert as rendered to clients, with its resolved deep link.
type alertView struct {
	*alert.Alert
	Link string `json:"link"`
}

type bucketsView struct {
	Urgent   []alertView `json:"urgent"`
	Overdue  []alertView `json:"overdue"`
	Upcoming []alertView `json:"upcoming"`
	Info     []alertView `json:"info"`
}

type snapshotView struct {
	Alerts         []alertView `json:"alerts"`
	Buckets        bucketsView `json:"buckets"`
	Unread         int         `json:"unread"`
	ActionRequired []alertView `json:"action_required"`
	GeneratedAt    time.Time   `json:"generated_at"`
}

func (a *API) view(al *alert.Alert) alertView {
	return alertView{Alert: al, Link: a.links.Resolve(al)}
}

func (a *API) views(alerts []*alert.Alert) []alertView {
	out := make([]alertView, 0, len(alerts))
	for _, al := range alerts {
		out = append(out, a.view(al))
	}
	return out
}

func (a *API) snapshotView(s *alert.Snapshot) snapshotView {
	return snapshotView{
		Alerts: a.views(s.Alerts),
		Buckets: bucketsView{
			Urgent:   a.views(s.Buckets.Urgent),
			Overdue:  a.views(s.Buckets.Overdue),
			Upcoming: a.views(s.Buckets.Upcoming),
			Info:     a.views(s.Buckets.Info),
		},
		Unread:         s.Unread,
		ActionRequired: a.views(s.ActionRequired),
		GeneratedAt:    s.GeneratedAt,
	}
}
