package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/bosun/internal/alert"
)

var (
	now    = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	vessel = alert.Scope{TenantID: "t1", ScopeID: "v1"}
)

func seed(t *testing.T, s *Store, a *alert.Alert) {
	t.Helper()
	if a.TenantID == "" {
		a.TenantID = "t1"
	}
	if a.Status == "" {
		a.Status = alert.StatusOpen
	}
	if a.Severity == "" {
		a.Severity = alert.SeverityYellow
	}
	if err := s.Create(context.Background(), a); err != nil {
		t.Fatalf("Create(%s): %v", a.ID, err)
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	a := &alert.Alert{ID: "a-1", ScopeID: "v1", Title: "Bilge"}
	seed(t, s, a)

	got, err := s.Get(ctx, vessel, "a-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Bilge" {
		t.Errorf("Title = %q, want %q", got.Title, "Bilge")
	}

	// returned copies are detached from the stored row
	got.Title = "changed"
	again, _ := s.Get(ctx, vessel, "a-1")
	if again.Title != "Bilge" {
		t.Error("mutating a returned alert changed the store")
	}
	a.Title = "changed"
	again, _ = s.Get(ctx, vessel, "a-1")
	if again.Title != "Bilge" {
		t.Error("mutating the created alert changed the store")
	}
}

func TestStore_CreateDuplicate(t *testing.T) {
	t.Parallel()

	s := New()
	seed(t, s, &alert.Alert{ID: "a-1"})
	if err := s.Create(context.Background(), &alert.Alert{ID: "a-1", TenantID: "t1"}); !errors.Is(err, alert.ErrValidation) {
		t.Errorf("duplicate Create err = %v, want ErrValidation", err)
	}
}

func TestStore_GetScoped(t *testing.T) {
	t.Parallel()

	s := New()
	seed(t, s, &alert.Alert{ID: "v2-only", ScopeID: "v2"})
	seed(t, s, &alert.Alert{ID: "global"})

	tests := []struct {
		name    string
		scope   alert.Scope
		id      string
		wantErr bool
	}{
		{"missing", vessel, "nope", true},
		{"other vessel", vessel, "v2-only", true},
		{"global", vessel, "global", false},
		{"fleet-wide", alert.Scope{TenantID: "t1", FleetWide: true}, "v2-only", false},
		{"other tenant", alert.Scope{TenantID: "t2", FleetWide: true}, "global", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := s.Get(context.Background(), tt.scope, tt.id)
			if tt.wantErr && !errors.Is(err, alert.ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
		})
	}
}

func TestStore_ListActive(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, &alert.Alert{ID: "green", ScopeID: "v1", Severity: alert.SeverityGreen})
	seed(t, s, &alert.Alert{ID: "red", ScopeID: "v1", Severity: alert.SeverityRed})
	seed(t, s, &alert.Alert{ID: "snoozed", ScopeID: "v1", Status: alert.StatusSnoozed})
	seed(t, s, &alert.Alert{ID: "resolved", ScopeID: "v1", Status: alert.StatusResolved})
	seed(t, s, &alert.Alert{ID: "closed", ScopeID: "v1", Status: alert.StatusClosed})
	seed(t, s, &alert.Alert{ID: "elsewhere", ScopeID: "v2"})

	got, err := s.ListActive(ctx, vessel, alert.ListQuery{})
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(got) != 3 || got[0].ID != "red" {
		t.Errorf("ListActive = %v", idsOf(got))
	}

	got, _ = s.ListActive(ctx, vessel, alert.ListQuery{Limit: 1})
	if len(got) != 1 || got[0].ID != "red" {
		t.Errorf("ListActive limit 1 = %v", idsOf(got))
	}

	got, _ = s.ListActive(ctx, alert.Scope{TenantID: "t9"}, alert.ListQuery{})
	if got == nil || len(got) != 0 {
		t.Errorf("empty tenant listing = %#v, want empty non-nil", got)
	}
}

func TestStore_ListAssigned(t *testing.T) {
	t.Parallel()

	s := New()
	at := now
	seed(t, s, &alert.Alert{ID: "mine", ScopeID: "v1", AssignedToUser: "u1", AssignedAt: &at, AssignmentPriority: alert.PriorityNormal})
	seed(t, s, &alert.Alert{ID: "role", ScopeID: "v1", AssignedToRole: "Master", AssignedAt: &at, AssignmentPriority: alert.PriorityUrgent})
	seed(t, s, &alert.Alert{ID: "other-role", ScopeID: "v1", AssignedToRole: "Cook"})
	seed(t, s, &alert.Alert{ID: "done", ScopeID: "v1", AssignedToUser: "u1", Status: alert.StatusResolved})

	got, err := s.ListAssigned(context.Background(), vessel, "u1", []string{"Master"})
	if err != nil {
		t.Fatalf("ListAssigned: %v", err)
	}
	ids := idsOf(got)
	if len(ids) != 2 || ids[0] != "role" || ids[1] != "mine" {
		t.Errorf("ListAssigned = %v, want [role mine]", ids)
	}
}

func TestStore_UpdateConditional(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, &alert.Alert{ID: "a-1", ScopeID: "v1"})

	a, _ := s.Get(ctx, vessel, "a-1")
	cond := alert.ConditionOf(a)
	if err := alert.ApplySnooze(a, time.Hour, "", now); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, vessel, a, cond); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	// a second writer holding the stale condition loses
	stale, _ := s.Get(ctx, vessel, "a-1")
	stale.Status = alert.StatusAcknowledged
	if err := s.Update(ctx, vessel, stale, cond); !errors.Is(err, alert.ErrConflict) {
		t.Errorf("stale Update err = %v, want ErrConflict", err)
	}

	if err := s.Update(ctx, alert.Scope{TenantID: "t2", FleetWide: true}, a, alert.ConditionOf(a)); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("foreign Update err = %v, want ErrNotFound", err)
	}
}

func TestStore_UpdateVersionGuardsAssignment(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, &alert.Alert{ID: "a-1", ScopeID: "v1"})

	// two writers read version 1
	acker, _ := s.Get(ctx, vessel, "a-1")
	assigner, _ := s.Get(ctx, vessel, "a-1")
	if acker.Version != 1 {
		t.Fatalf("created Version = %d, want 1", acker.Version)
	}

	cond := alert.ConditionOf(assigner)
	if err := alert.ApplyAssignment(assigner, alert.Assignment{Target: alert.Target{Role: "Chief Engineer"}}, "u1", now); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, vessel, assigner, cond); err != nil {
		t.Fatalf("assign Update: %v", err)
	}
	if assigner.Version != 2 {
		t.Errorf("Version after update = %d, want 2", assigner.Version)
	}

	// same status and snooze count as stored, but an older version
	cond = alert.ConditionOf(acker)
	if _, err := alert.ApplyAcknowledge(acker, "u2", now); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, vessel, acker, cond); !errors.Is(err, alert.ErrConflict) {
		t.Fatalf("stale Update err = %v, want ErrConflict", err)
	}

	got, _ := s.Get(ctx, vessel, "a-1")
	if got.AssignedToRole != "Chief Engineer" || got.Status != alert.StatusOpen || got.Version != 2 {
		t.Errorf("after rejected write: %+v", got)
	}
}

func TestStore_UpdateKeepsIdentity(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, &alert.Alert{ID: "a-1", ScopeID: "v1", CreatedAt: now})

	a, _ := s.Get(ctx, vessel, "a-1")
	cond := alert.ConditionOf(a)
	a.TenantID, a.ScopeID, a.CreatedAt = "t2", "v9", now.Add(time.Hour)
	a.Title = "renamed"
	if err := s.Update(ctx, vessel, a, cond); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, vessel, "a-1")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.TenantID != "t1" || got.ScopeID != "v1" || !got.CreatedAt.Equal(now) || got.Title != "renamed" {
		t.Errorf("after update: %+v", got)
	}
}

func TestStore_ReleaseExpiredSnoozes(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	past, future := now.Add(-time.Minute), now.Add(time.Hour)
	seed(t, s, &alert.Alert{ID: "lapsed-t1", Status: alert.StatusSnoozed, SnoozedUntil: &past})
	seed(t, s, &alert.Alert{ID: "lapsed-t2", TenantID: "t2", Status: alert.StatusSnoozed, SnoozedUntil: &past})
	seed(t, s, &alert.Alert{ID: "active", Status: alert.StatusSnoozed, SnoozedUntil: &future})

	tenants, err := s.ReleaseExpiredSnoozes(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(tenants) != 2 || tenants[0] != "t1" || tenants[1] != "t2" {
		t.Errorf("tenants = %v, want [t1 t2]", tenants)
	}

	got, _ := s.Get(ctx, vessel, "lapsed-t1")
	if got.Status != alert.StatusOpen || got.SnoozedUntil != nil || !got.UpdatedAt.Equal(now) || got.Version != 2 {
		t.Errorf("lapsed after release: %+v", got)
	}
	got, _ = s.Get(ctx, vessel, "active")
	if got.Status != alert.StatusSnoozed {
		t.Errorf("active snooze released: %s", got.Status)
	}
}

func TestStore_Members(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddMember(alert.Member{TenantID: "t1", ScopeID: "v1", UserID: "u2", DisplayName: "Zed"})
	s.AddMember(alert.Member{TenantID: "t1", ScopeID: "v1", UserID: "u1", DisplayName: "Amy"})
	s.AddMember(alert.Member{TenantID: "t1", ScopeID: "v2", UserID: "u3", DisplayName: "Bo"})
	s.AddMember(alert.Member{TenantID: "t2", ScopeID: "v1", UserID: "u4", DisplayName: "Cy"})

	got, _ := s.Members(context.Background(), "t1", "v1")
	if len(got) != 2 || got[0].DisplayName != "Amy" {
		t.Errorf("vessel members = %+v", got)
	}
	got, _ = s.Members(context.Background(), "t1", "")
	if len(got) != 3 {
		t.Errorf("tenant members = %+v", got)
	}
}

func TestStore_Preferences(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	if _, ok, err := s.GetPreferences(ctx, "t1", "u1"); ok || err != nil {
		t.Fatalf("GetPreferences on empty store: ok=%v err=%v", ok, err)
	}
	if err := s.PutPreferences(ctx, &alert.Preferences{TenantID: "t1", UserID: "u1", HelperDismissed: true}); err != nil {
		t.Fatal(err)
	}
	p, ok, _ := s.GetPreferences(ctx, "t1", "u1")
	if !ok || !p.HelperDismissed {
		t.Errorf("GetPreferences = %+v, %v", p, ok)
	}
	if _, ok, _ := s.GetPreferences(ctx, "t2", "u1"); ok {
		t.Error("preferences visible across tenants")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Go(func() {
			id := fmt.Sprintf("c-%d", i)
			_ = s.Create(ctx, &alert.Alert{ID: id, TenantID: "t1", ScopeID: "v1", Status: alert.StatusOpen, Severity: alert.SeverityGreen})
			_, _ = s.Get(ctx, vessel, id)
			_, _ = s.ListActive(ctx, vessel, alert.ListQuery{Limit: 10})
		})
	}
	wg.Wait()

	got, _ := s.ListActive(ctx, vessel, alert.ListQuery{})
	if len(got) != 50 {
		t.Errorf("got %d alerts, want 50", len(got))
	}
}

func idsOf(alerts []*alert.Alert) []string {
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.ID)
	}
	return out
}
