package alert

import (
	"fmt"
	"slices"
	"time"
)

// MaxSnoozes is the lifetime snooze budget of an alert.
const MaxSnoozes = 3

// SnoozeOptions is the fixed menu of snooze durations.
var SnoozeOptions = []time.Duration{
	1 * time.Hour,
	4 * time.Hour,
	8 * time.Hour,
	24 * time.Hour,
}

// SnoozeAllowance tells a consumer how many snoozes remain before it offers one.
type SnoozeAllowance struct {
	AlertID   string `json:"alert_id"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
	Hours     []int  `json:"hours"`
}

// AllowanceOf reports the snooze budget of a. A resolved or closed alert can
// never be snoozed again, so it has nothing remaining whatever its count.
func AllowanceOf(a *Alert) SnoozeAllowance {
	hours := make([]int, 0, len(SnoozeOptions))
	for _, d := range SnoozeOptions {
		hours = append(hours, int(d/time.Hour))
	}
	remaining := a.RemainingSnoozes()
	if a.Status.Terminal() {
		remaining = 0
	}
	return SnoozeAllowance{
		AlertID:   a.ID,
		Used:      a.SnoozeCount,
		Remaining: remaining,
		Hours:     hours,
	}
}

// SnoozeDuration maps an hour count from the snooze menu to its duration.
// The count is compared before any conversion so huge values cannot wrap
// onto a menu entry.
func SnoozeDuration(hours int) (time.Duration, error) {
	for _, d := range SnoozeOptions {
		if int64(d/time.Hour) == int64(hours) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: snooze of %d hours is not one of 1, 4, 8, 24", ErrValidation, hours)
}

// ValidSnoozeDuration reports whether d is on the snooze menu.
func ValidSnoozeDuration(d time.Duration) bool {
	return slices.Contains(SnoozeOptions, d)
}

// ApplySnooze moves a into the snoozed state until now+d and consumes one
// snooze. a is left untouched when an error is returned.
func ApplySnooze(a *Alert, d time.Duration, reason string, now time.Time) error {
	if !ValidSnoozeDuration(d) {
		return fmt.Errorf("%w: snooze duration %s is not one of 1h, 4h, 8h, 24h", ErrValidation, d)
	}
	if a.Status.Terminal() {
		return fmt.Errorf("%w: cannot snooze %s alert", ErrInvalidTransition, a.Status)
	}
	if a.SnoozeCount >= MaxSnoozes {
		return fmt.Errorf("%w: alert %s was snoozed %d times", ErrSnoozeLimitExceeded, a.ID, a.SnoozeCount)
	}
	until := now.Add(d)
	a.Status = StatusSnoozed
	a.SnoozedUntil = &until
	a.SnoozeReason = reason
	a.SnoozeCount++
	a.UpdatedAt = now
	return nil
}

// ExpireSnooze normalizes an elapsed snooze back to open. It reports whether
// anything changed.
func ExpireSnooze(a *Alert, now time.Time) bool {
	if a.Status != StatusSnoozed || a.Snoozed(now) {
		return false
	}
	a.Status = StatusOpen
	a.SnoozedUntil = nil
	return true
}
