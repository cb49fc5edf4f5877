package alert

import (
	"fmt"
	"strings"
	"time"
)

// Target names who an alert is delegated to: a single user or every holder
// of a role.
type Target struct {
	UserID string `json:"user,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Validate checks that exactly one of user or role is set.
func (t Target) Validate() error {
	user := strings.TrimSpace(t.UserID)
	role := strings.TrimSpace(t.Role)
	switch {
	case user == "" && role == "":
		return fmt.Errorf("%w: assignment target needs a user or a role", ErrValidation)
	case user != "" && role != "":
		return fmt.Errorf("%w: assignment target cannot name both a user and a role", ErrValidation)
	}
	return nil
}

// Assignment is an assign request.
type Assignment struct {
	Target   Target
	Priority Priority
	Notes    string
}

// ApplyAssignment replaces any previous assignment of a. a is left untouched
// when an error is returned.
func ApplyAssignment(a *Alert, as Assignment, actor string, now time.Time) error {
	if err := as.Target.Validate(); err != nil {
		return err
	}
	prio := as.Priority
	if prio == "" {
		prio = PriorityNormal
	}
	if !prio.Valid() {
		return fmt.Errorf("%w: unknown assignment priority %q", ErrValidation, as.Priority)
	}
	if a.Status.Terminal() {
		return fmt.Errorf("%w: cannot assign %s alert", ErrInvalidTransition, a.Status)
	}

	at := now
	a.AssignedToUser = strings.TrimSpace(as.Target.UserID)
	a.AssignedToRole = strings.TrimSpace(as.Target.Role)
	a.AssignedBy = actor
	a.AssignedAt = &at
	a.AssignmentNotes = as.Notes
	a.AssignmentPriority = prio
	a.UpdatedAt = now
	return nil
}

// ClearAssignment removes the assignment of a.
func ClearAssignment(a *Alert, now time.Time) error {
	if a.Status.Terminal() {
		return fmt.Errorf("%w: cannot unassign %s alert", ErrInvalidTransition, a.Status)
	}
	a.AssignedToUser = ""
	a.AssignedToRole = ""
	a.AssignedBy = ""
	a.AssignedAt = nil
	a.AssignmentNotes = ""
	a.AssignmentPriority = ""
	a.UpdatedAt = now
	return nil
}

// AssignedTo reports whether a sits in p's personal queue. Severity and
// snooze state do not matter.
func AssignedTo(a *Alert, p Principal) bool {
	if a.Status.Terminal() {
		return false
	}
	if a.AssignedToUser != "" && a.AssignedToUser == p.UserID {
		return true
	}
	return p.HasRole(a.AssignedToRole)
}
