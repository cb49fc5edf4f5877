package alert

import (
	"slices"
	"time"
)

// Severity is the producer-assigned urgency tier.
type Severity string

const (
	SeverityRed    Severity = "red"
	SeverityOrange Severity = "orange"
	SeverityYellow Severity = "yellow"
	SeverityGreen  Severity = "green"
)

// Rank orders severities for listing, red first. Unknown severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityRed:
		return 0
	case SeverityOrange:
		return 1
	case SeverityYellow:
		return 2
	case SeverityGreen:
		return 3
	default:
		return 4
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool { return s.Rank() < 4 }

// Status tracks where an alert is in its lifecycle.
type Status string

const (
	// StatusOpen means raised and waiting for an operator
	StatusOpen Status = "open"

	// StatusAcknowledged means an operator has seen it
	StatusAcknowledged Status = "acknowledged"

	// StatusSnoozed means suppressed until SnoozedUntil
	StatusSnoozed Status = "snoozed"

	// StatusEscalated means a producer raised its urgency
	StatusEscalated Status = "escalated"

	// StatusResolved is terminal
	StatusResolved Status = "resolved"

	// StatusClosed is terminal
	StatusClosed Status = "closed"
)

// ActiveStatuses are the statuses returned by active listings.
var ActiveStatuses = []Status{StatusOpen, StatusAcknowledged, StatusSnoozed, StatusEscalated}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return slices.Contains(ActiveStatuses, s) || s.Terminal()
}

var transitions = map[Status][]Status{
	StatusOpen:         {StatusAcknowledged, StatusSnoozed, StatusEscalated, StatusResolved, StatusClosed},
	StatusAcknowledged: {StatusOpen, StatusSnoozed, StatusEscalated, StatusResolved, StatusClosed},
	StatusSnoozed:      {StatusOpen, StatusAcknowledged, StatusSnoozed, StatusEscalated, StatusResolved, StatusClosed},
	StatusEscalated:    {StatusAcknowledged, StatusSnoozed, StatusResolved, StatusClosed},
}

// CanTransition reports whether an alert may move from one status to another.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Priority is the assignment priority, independent of Severity.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities for the assignment queue, urgent first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityHigh || p == PriorityUrgent
}

// Alert is a condition requiring operator attention.
type Alert struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	ScopeID           string     `json:"scope_id,omitempty"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Severity          Severity   `json:"severity"`
	Status            Status     `json:"status"`
	DueAt             *time.Time `json:"due_at,omitempty"`
	SourceModule      string     `json:"source_module,omitempty"`
	RelatedEntityType string     `json:"related_entity_type,omitempty"`
	RelatedEntityID   string     `json:"related_entity_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	// Version is bumped by the store on every write.
	Version           int64      `json:"version"`

	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`

	SnoozeCount  int        `json:"snooze_count"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
	SnoozeReason string     `json:"snooze_reason,omitempty"`

	AssignedToUser     string     `json:"assigned_to_user,omitempty"`
	AssignedToRole     string     `json:"assigned_to_role,omitempty"`
	AssignedBy         string     `json:"assigned_by,omitempty"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty"`
	AssignmentNotes    string     `json:"assignment_notes,omitempty"`
	AssignmentPriority Priority   `json:"assignment_priority,omitempty"`
}

// Clone returns a deep copy of a.
func (a *Alert) Clone() *Alert {
	cp := *a
	cp.DueAt = cloneTime(a.DueAt)
	cp.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	cp.SnoozedUntil = cloneTime(a.SnoozedUntil)
	cp.AssignedAt = cloneTime(a.AssignedAt)
	return &cp
}

// Snoozed reports whether the alert is currently suppressed.
func (a *Alert) Snoozed(now time.Time) bool {
	return a.Status == StatusSnoozed && a.SnoozedUntil != nil && now.Before(*a.SnoozedUntil)
}

// EffectiveStatus derives the status callers should see at now. A snooze whose
// deadline has passed reads as open.
func (a *Alert) EffectiveStatus(now time.Time) Status {
	if a.Status == StatusSnoozed && !a.Snoozed(now) {
		return StatusOpen
	}
	return a.Status
}

// Assigned reports whether the alert has an active assignee.
func (a *Alert) Assigned() bool {
	return a.AssignedToUser != "" || a.AssignedToRole != ""
}

// RemainingSnoozes is how many more times the alert may be snoozed.
func (a *Alert) RemainingSnoozes() int {
	return max(MaxSnoozes-a.SnoozeCount, 0)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Principal is the acting identity supplied by the identity collaborator.
type Principal struct {
	TenantID  string   `json:"tenant_id"`
	UserID    string   `json:"user_id"`
	Roles     []string `json:"roles,omitempty"`
	ScopeID   string   `json:"scope_id,omitempty"`
	FleetWide bool     `json:"fleet_wide,omitempty"`
}

// Scope returns the query scope for the principal.
func (p Principal) Scope() Scope {
	return Scope{TenantID: p.TenantID, ScopeID: p.ScopeID, FleetWide: p.FleetWide}
}

// HasRole reports whether the principal currently holds role.
func (p Principal) HasRole(role string) bool {
	return role != "" && slices.Contains(p.Roles, role)
}

// Scope restricts which alerts a query may see. A fleet-wide scope sees every
// alert of the tenant; otherwise only alerts for ScopeID plus global alerts.
type Scope struct {
	TenantID  string
	ScopeID   string
	FleetWide bool
}

// Allows reports whether a is visible inside the scope.
func (s Scope) Allows(a *Alert) bool {
	if s.TenantID == "" || a.TenantID != s.TenantID {
		return false
	}
	return s.FleetWide || a.ScopeID == "" || a.ScopeID == s.ScopeID
}

// Member is a crew member who may receive an assignment.
type Member struct {
	TenantID    string `json:"tenant_id"`
	ScopeID     string `json:"scope_id,omitempty"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Preferences is the per-user UI preference record.
type Preferences struct {
	TenantID        string    `json:"-"`
	UserID          string    `json:"-"`
	HelperDismissed bool      `json:"helper_dismissed"`
	UpdatedAt       time.Time `json:"updated_at"`
}
