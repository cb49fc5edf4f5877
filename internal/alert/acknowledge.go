package alert

import (
	"fmt"
	"slices"
	"time"
)

// ApplyAcknowledge marks a as acknowledged by actor. The first acknowledgement
// stamps AcknowledgedAt/AcknowledgedBy; later ones never move them. It
// reports false when a was already acknowledged.
func ApplyAcknowledge(a *Alert, actor string, now time.Time) (bool, error) {
	if a.Status.Terminal() {
		return false, fmt.Errorf("%w: cannot acknowledge %s alert", ErrInvalidTransition, a.Status)
	}
	if a.Status == StatusAcknowledged {
		return false, nil
	}
	a.Status = StatusAcknowledged
	a.SnoozedUntil = nil
	if a.AcknowledgedAt == nil {
		at := now
		a.AcknowledgedAt = &at
		a.AcknowledgedBy = actor
	}
	a.UpdatedAt = now
	return true, nil
}

// ApplyUnacknowledge returns an acknowledged alert to open.
func ApplyUnacknowledge(a *Alert, now time.Time) error {
	if a.Status != StatusAcknowledged {
		return fmt.Errorf("%w: cannot reopen %s alert", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusOpen
	a.UpdatedAt = now
	return nil
}

// ProducerStatuses are the statuses a producer may set directly. Snoozes and
// acknowledgements go through their own operations.
var ProducerStatuses = []Status{StatusOpen, StatusEscalated, StatusResolved, StatusClosed}

// ApplyStatus is the producer path for escalation, resolution and closure.
// Repeating the current status is a no-op and reports false; producers
// resend state on every evaluation.
func ApplyStatus(a *Alert, to Status, now time.Time) (bool, error) {
	if !slices.Contains(ProducerStatuses, to) {
		return false, fmt.Errorf("%w: producers cannot set status %q", ErrValidation, to)
	}
	from := a.EffectiveStatus(now)
	if from == to {
		// a lapsed snooze still gets normalized in storage
		if !ExpireSnooze(a, now) {
			return false, nil
		}
		a.UpdatedAt = now
		return true, nil
	}
	if !CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	a.Status = to
	a.SnoozedUntil = nil
	a.UpdatedAt = now
	return true, nil
}
