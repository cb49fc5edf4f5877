// Package memstore provides an in-memory implementation of alert.Store.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/bosun/internal/alert"
)

// Store holds alerts in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	alerts  map[string]*alert.Alert       // alert ID -> alert
	members []alert.Member                // crew directory
	prefs   map[string]*alert.Preferences // tenant/user -> preferences
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		alerts: make(map[string]*alert.Alert),
		prefs:  make(map[string]*alert.Preferences),
	}
}

// AddMember seeds the crew directory.
func (s *Store) AddMember(m alert.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = append(s.members, m)
}

// Create stores a copy of a new alert.
func (s *Store) Create(_ context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; ok {
		return fmt.Errorf("%w: alert %s already exists", alert.ErrValidation, a.ID)
	}
	a.Version = 1
	s.alerts[a.ID] = a.Clone()
	return nil
}

// Get retrieves an alert inside scope. Returns a copy.
func (s *Store) Get(_ context.Context, scope alert.Scope, id string) (*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok || !scope.Allows(a) {
		return nil, alert.ErrNotFound
	}
	return a.Clone(), nil
}

// ListActive returns copies of the non-terminal alerts inside scope.
func (s *Store) ListActive(_ context.Context, scope alert.Scope, q alert.ListQuery) ([]*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*alert.Alert, 0)
	for _, a := range s.alerts {
		if scope.Allows(a) && slices.Contains(alert.ActiveStatuses, a.Status) {
			out = append(out, a.Clone())
		}
	}
	alert.SortActive(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ListAssigned returns copies of the alerts assigned to userID or to any of roles.
func (s *Store) ListAssigned(_ context.Context, scope alert.Scope, userID string, roles []string) ([]*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*alert.Alert, 0)
	for _, a := range s.alerts {
		if !scope.Allows(a) || a.Status.Terminal() {
			continue
		}
		byUser := userID != "" && a.AssignedToUser == userID
		byRole := a.AssignedToRole != "" && slices.Contains(roles, a.AssignedToRole)
		if byUser || byRole {
			out = append(out, a.Clone())
		}
	}
	alert.SortQueue(out)
	return out, nil
}

// Update replaces the stored alert if it is still at cond.Version and
// advances a.Version to the stored one.
func (s *Store) Update(_ context.Context, scope alert.Scope, a *alert.Alert, cond alert.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.alerts[a.ID]
	if !ok || !scope.Allows(cur) {
		return alert.ErrNotFound
	}
	if cur.Version != cond.Version {
		return alert.ErrConflict
	}
	a.Version = cur.Version + 1
	next := a.Clone()
	// identity columns are never rewritten
	next.TenantID = cur.TenantID
	next.ScopeID = cur.ScopeID
	next.CreatedAt = cur.CreatedAt
	s.alerts[a.ID] = next
	return nil
}

// ReleaseExpiredSnoozes reopens elapsed snoozes and returns the touched tenants.
func (s *Store) ReleaseExpiredSnoozes(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, a := range s.alerts {
		if alert.ExpireSnooze(a, now) {
			a.UpdatedAt = now
			a.Version++
			seen[a.TenantID] = struct{}{}
		}
	}
	tenants := make([]string, 0, len(seen))
	for t := range seen {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	return tenants, nil
}

// Members returns the crew for scopeID, or the whole tenant when scopeID is empty.
func (s *Store) Members(_ context.Context, tenantID, scopeID string) ([]alert.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]alert.Member, 0)
	for _, m := range s.members {
		if m.TenantID != tenantID {
			continue
		}
		if scopeID != "" && m.ScopeID != scopeID {
			continue
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b alert.Member) int {
		return cmp.Or(cmp.Compare(a.DisplayName, b.DisplayName), cmp.Compare(a.UserID, b.UserID))
	})
	return out, nil
}

// GetPreferences returns a copy of the stored preferences.
func (s *Store) GetPreferences(_ context.Context, tenantID, userID string) (*alert.Preferences, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[prefKey(tenantID, userID)]
	if !ok {
		return nil, false, nil
	}
	cp := *p
	return &cp, true, nil
}

// PutPreferences stores a copy of p.
func (s *Store) PutPreferences(_ context.Context, p *alert.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.prefs[prefKey(p.TenantID, p.UserID)] = &cp
	return nil
}

func prefKey(tenantID, userID string) string {
	return tenantID + "/" + userID
}
