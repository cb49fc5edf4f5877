package alert

import "time"

// UpcomingWindow is how far ahead a due date still counts as upcoming.
const UpcomingWindow = 7 * 24 * time.Hour

// Bucket is a display grouping produced by the Classifier.
type Bucket string

const (
	BucketUrgent   Bucket = "urgent"
	BucketOverdue  Bucket = "overdue"
	BucketUpcoming Bucket = "upcoming"
	BucketInfo     Bucket = "info"
)

// Buckets groups alerts for display. Input order is preserved inside each group.
type Buckets struct {
	Urgent   []*Alert `json:"urgent"`
	Overdue  []*Alert `json:"overdue"`
	Upcoming []*Alert `json:"upcoming"`
	Info     []*Alert `json:"info"`
}

// BucketOf places a single alert. Red severity is always urgent; otherwise the
// due date decides.
func BucketOf(a *Alert, now time.Time) Bucket {
	if a.Severity == SeverityRed {
		return BucketUrgent
	}
	if a.DueAt == nil {
		return BucketInfo
	}
	if a.DueAt.Before(now) {
		return BucketOverdue
	}
	if !a.DueAt.After(now.Add(UpcomingWindow)) {
		return BucketUpcoming
	}
	return BucketInfo
}

// Classify buckets the alerts that are visible at now. Terminal alerts and
// alerts still inside their snooze window are left out.
func Classify(alerts []*Alert, now time.Time) Buckets {
	b := Buckets{
		Urgent:   []*Alert{},
		Overdue:  []*Alert{},
		Upcoming: []*Alert{},
		Info:     []*Alert{},
	}
	for _, a := range alerts {
		if a.Status.Terminal() || a.Snoozed(now) {
			continue
		}
		switch BucketOf(a, now) {
		case BucketUrgent:
			b.Urgent = append(b.Urgent, a)
		case BucketOverdue:
			b.Overdue = append(b.Overdue, a)
		case BucketUpcoming:
			b.Upcoming = append(b.Upcoming, a)
		default:
			b.Info = append(b.Info, a)
		}
	}
	return b
}

// ActionRequired returns the urgent and overdue alerts nobody has
// acknowledged yet.
func ActionRequired(b Buckets, now time.Time) []*Alert {
	out := []*Alert{}
	for _, group := range [][]*Alert{b.Urgent, b.Overdue} {
		for _, a := range group {
			if a.EffectiveStatus(now) == StatusAcknowledged {
				continue
			}
			out = append(out, a)
		}
	}
	return out
}

// Unread counts alerts whose effective status is open.
func Unread(alerts []*Alert, now time.Time) int {
	n := 0
	for _, a := range alerts {
		if a.EffectiveStatus(now) == StatusOpen {
			n++
		}
	}
	return n
}
