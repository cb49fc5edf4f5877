package alert

import (
	"context"
	"time"
)

// ListQuery narrows an active listing.
type ListQuery struct {
	// Limit caps the number of rows, 0 means unbounded.
	Limit int
}

// Condition guards a conditional update. The write only applies when the
// stored row is still at this version, so any write committed since the read
// (assignment included) turns the update into ErrConflict.
type Condition struct {
	Version int64
}

// ConditionOf captures the guard for a row as it was read.
func ConditionOf(a *Alert) Condition {
	return Condition{Version: a.Version}
}

// Store is the persistence interface for alerts. Every read and write is
// bounded by a Scope; ids outside it return ErrNotFound. Create stores a new
// row at version 1 and every later write increments it.
type Store interface {
	Create(ctx context.Context, a *Alert) error
	Get(ctx context.Context, scope Scope, id string) (*Alert, error)
	ListActive(ctx context.Context, scope Scope, q ListQuery) ([]*Alert, error)
	ListAssigned(ctx context.Context, scope Scope, userID string, roles []string) ([]*Alert, error)
	Update(ctx context.Context, scope Scope, a *Alert, cond Condition) error
	ReleaseExpiredSnoozes(ctx context.Context, now time.Time) (tenants []string, err error)
	Members(ctx context.Context, tenantID, scopeID string) ([]Member, error)
	GetPreferences(ctx context.Context, tenantID, userID string) (*Preferences, bool, error)
	PutPreferences(ctx context.Context, p *Preferences) error
}
