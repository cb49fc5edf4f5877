package alert

import (
	"cmp"
	"slices"
)

// CompareActive orders alerts red first, then by due date ascending with
// undated alerts last, then newest first.
func CompareActive(a, b *Alert) int {
	if c := cmp.Compare(a.Severity.Rank(), b.Severity.Rank()); c != 0 {
		return c
	}
	switch {
	case a.DueAt != nil && b.DueAt == nil:
		return -1
	case a.DueAt == nil && b.DueAt != nil:
		return 1
	case a.DueAt != nil && b.DueAt != nil:
		if c := a.DueAt.Compare(*b.DueAt); c != 0 {
			return c
		}
	}
	return b.CreatedAt.Compare(a.CreatedAt)
}

// CompareQueue orders an assignment queue by priority, then most recent
// assignment first.
func CompareQueue(a, b *Alert) int {
	if c := cmp.Compare(a.AssignmentPriority.Rank(), b.AssignmentPriority.Rank()); c != 0 {
		return c
	}
	switch {
	case a.AssignedAt != nil && b.AssignedAt != nil:
		if c := b.AssignedAt.Compare(*a.AssignedAt); c != 0 {
			return c
		}
	case a.AssignedAt != nil:
		return -1
	case b.AssignedAt != nil:
		return 1
	}
	return CompareActive(a, b)
}

// SortActive sorts alerts in place using CompareActive.
func SortActive(alerts []*Alert) {
	slices.SortStableFunc(alerts, CompareActive)
}

// SortQueue sorts alerts in place using CompareQueue.
func SortQueue(alerts []*Alert) {
	slices.SortStableFunc(alerts, CompareQueue)
}
