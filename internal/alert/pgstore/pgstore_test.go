package pgstore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/bosun/internal/alert"
	"github.com/linnemanlabs/bosun/internal/alert/pgstore"
	"github.com/linnemanlabs/bosun/internal/postgres"
)

type testDB struct {
	store  *pgstore.Store
	exec   func(ctx context.Context, sql string, args ...any) error
	tenant string
}

func openStore(t *testing.T) *testDB {
	t.Helper()
	dsn := os.Getenv("BOSUN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("BOSUN_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}

	// every test gets its own tenant so runs never see each other's rows
	tenant := "test-" + ulid.Make().String()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM alerts WHERE tenant_id = $1`, tenant)
		_, _ = pool.Exec(context.Background(), `DELETE FROM crew_members WHERE tenant_id = $1`, tenant)
		_, _ = pool.Exec(context.Background(), `DELETE FROM user_preferences WHERE tenant_id = $1`, tenant)
	})
	return &testDB{
		store: s,
		exec: func(ctx context.Context, sql string, args ...any) error {
			_, err := pool.Exec(ctx, sql, args...)
			return err
		},
		tenant: tenant,
	}
}

func (db *testDB) scope(scopeID string) alert.Scope {
	return alert.Scope{TenantID: db.tenant, ScopeID: scopeID}
}

func (db *testDB) seed(t *testing.T, a *alert.Alert) *alert.Alert {
	t.Helper()
	now := time.Now().Truncate(time.Microsecond).UTC()
	if a.ID == "" {
		a.ID = ulid.Make().String()
	}
	a.TenantID = db.tenant
	if a.Title == "" {
		a.Title = "test alert"
	}
	if a.Severity == "" {
		a.Severity = alert.SeverityYellow
	}
	if a.Status == "" {
		a.Status = alert.StatusOpen
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt
	if err := db.store.Create(context.Background(), a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return a
}

func TestCreateAndGet(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	due := time.Now().Add(72 * time.Hour).Truncate(time.Microsecond).UTC()
	in := db.seed(t, &alert.Alert{
		ScopeID:         "v1",
		Title:           "Radio survey",
		Description:     "GMDSS annual survey",
		Severity:        alert.SeverityOrange,
		DueAt:           &due,
		SourceModule:    "certificate",
		RelatedEntityID: "cert-9",
	})

	got, err := db.store.Get(ctx, db.scope("v1"), in.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	assertEqual(t, "ID", in.ID, got.ID)
	assertEqual(t, "TenantID", in.TenantID, got.TenantID)
	assertEqual(t, "ScopeID", in.ScopeID, got.ScopeID)
	assertEqual(t, "Title", in.Title, got.Title)
	assertEqual(t, "Description", in.Description, got.Description)
	assertEqual(t, "Severity", string(in.Severity), string(got.Severity))
	assertEqual(t, "Status", string(in.Status), string(got.Status))
	assertEqual(t, "SourceModule", in.SourceModule, got.SourceModule)
	assertEqual(t, "RelatedEntityID", in.RelatedEntityID, got.RelatedEntityID)
	assertEqual(t, "RelatedEntityType", "", got.RelatedEntityType)
	if got.DueAt == nil || !got.DueAt.Equal(due) {
		t.Errorf("DueAt = %v, want %v", got.DueAt, due)
	}
	if !got.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, in.CreatedAt)
	}
	if got.AcknowledgedAt != nil || got.SnoozedUntil != nil || got.AssignedAt != nil {
		t.Errorf("unexpected lifecycle timestamps: %+v", got)
	}
}

func TestGet_ScopeAndTenant(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	vessel := db.seed(t, &alert.Alert{ScopeID: "v2"})
	global := db.seed(t, &alert.Alert{})

	if _, err := db.store.Get(ctx, db.scope("v1"), vessel.ID); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("other vessel Get err = %v, want ErrNotFound", err)
	}
	if _, err := db.store.Get(ctx, db.scope("v1"), global.ID); err != nil {
		t.Errorf("global Get err = %v", err)
	}
	fleet := alert.Scope{TenantID: db.tenant, FleetWide: true}
	if _, err := db.store.Get(ctx, fleet, vessel.ID); err != nil {
		t.Errorf("fleet-wide Get err = %v", err)
	}
	foreign := alert.Scope{TenantID: "someone-else", FleetWide: true}
	if _, err := db.store.Get(ctx, foreign, global.ID); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("foreign tenant Get err = %v, want ErrNotFound", err)
	}
}

func TestListActive_Ordering(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Microsecond).UTC()
	soon, later := base.Add(time.Hour), base.Add(48*time.Hour)
	db.seed(t, &alert.Alert{ID: db.tenant + "-green", ScopeID: "v1", Severity: alert.SeverityGreen})
	db.seed(t, &alert.Alert{ID: db.tenant + "-yellow-late", ScopeID: "v1", DueAt: &later})
	db.seed(t, &alert.Alert{ID: db.tenant + "-yellow-soon", ScopeID: "v1", DueAt: &soon})
	db.seed(t, &alert.Alert{ID: db.tenant + "-red", ScopeID: "v1", Severity: alert.SeverityRed})
	db.seed(t, &alert.Alert{ID: db.tenant + "-resolved", ScopeID: "v1", Status: alert.StatusResolved})

	got, err := db.store.ListActive(ctx, db.scope("v1"), alert.ListQuery{})
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	want := []string{"-red", "-yellow-soon", "-yellow-late", "-green"}
	if len(got) != len(want) {
		t.Fatalf("ListActive returned %d rows, want %d", len(got), len(want))
	}
	for i, suffix := range want {
		if got[i].ID != db.tenant+suffix {
			t.Errorf("row %d = %s, want %s", i, got[i].ID, db.tenant+suffix)
		}
	}

	limited, err := db.store.ListActive(ctx, db.scope("v1"), alert.ListQuery{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d rows", len(limited))
	}
}

func TestListAssigned(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	at := time.Now().Truncate(time.Microsecond).UTC()
	mine := db.seed(t, &alert.Alert{ScopeID: "v1", AssignedToUser: "u1", AssignedAt: &at, AssignmentPriority: alert.PriorityNormal})
	role := db.seed(t, &alert.Alert{ScopeID: "v1", AssignedToRole: "Chief Engineer", AssignedAt: &at, AssignmentPriority: alert.PriorityUrgent})
	db.seed(t, &alert.Alert{ScopeID: "v1", AssignedToRole: "Cook"})

	got, err := db.store.ListAssigned(ctx, db.scope("v1"), "u1", []string{"Chief Engineer"})
	if err != nil {
		t.Fatalf("ListAssigned: %v", err)
	}
	if len(got) != 2 || got[0].ID != role.ID || got[1].ID != mine.ID {
		t.Errorf("ListAssigned = %d rows", len(got))
	}

	none, err := db.store.ListAssigned(ctx, db.scope("v1"), "nobody", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("unrelated user sees %d rows", len(none))
	}
}

func TestUpdate_ConditionalWrite(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()
	scope := db.scope("v1")
	a := db.seed(t, &alert.Alert{ScopeID: "v1"})

	now := time.Now().Truncate(time.Microsecond).UTC()
	cond := alert.ConditionOf(a)
	if err := alert.ApplySnooze(a, 4*time.Hour, "in port", now); err != nil {
		t.Fatal(err)
	}
	if err := db.store.Update(ctx, scope, a, cond); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := db.store.Get(ctx, scope, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, "Status", string(alert.StatusSnoozed), string(got.Status))
	assertEqual(t, "SnoozeCount", 1, got.SnoozeCount)
	assertEqual(t, "SnoozeReason", "in port", got.SnoozeReason)
	if got.SnoozedUntil == nil || !got.SnoozedUntil.Equal(now.Add(4*time.Hour)) {
		t.Errorf("SnoozedUntil = %v", got.SnoozedUntil)
	}

	// a writer still holding the original condition loses
	if err := db.store.Update(ctx, scope, a, cond); !errors.Is(err, alert.ErrConflict) {
		t.Errorf("stale Update err = %v, want ErrConflict", err)
	}
	// a writer outside the scope sees nothing to update
	if err := db.store.Update(ctx, db.scope("v2"), a, alert.ConditionOf(got)); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("out-of-scope Update err = %v, want ErrNotFound", err)
	}
}

func TestUpdate_StaleWriteKeepsAssignment(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()
	scope := db.scope("v1")
	a := db.seed(t, &alert.Alert{ScopeID: "v1"})
	assertEqual(t, "Version", int64(1), a.Version)

	acker, err := db.store.Get(ctx, scope, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	assigner, err := db.store.Get(ctx, scope, a.ID)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().Truncate(time.Microsecond).UTC()
	cond := alert.ConditionOf(assigner)
	if err := alert.ApplyAssignment(assigner, alert.Assignment{Target: alert.Target{Role: "Chief Engineer"}, Priority: alert.PriorityUrgent}, "u-master", now); err != nil {
		t.Fatal(err)
	}
	if err := db.store.Update(ctx, scope, assigner, cond); err != nil {
		t.Fatalf("assign Update: %v", err)
	}
	assertEqual(t, "Version", int64(2), assigner.Version)

	cond = alert.ConditionOf(acker)
	if _, err := alert.ApplyAcknowledge(acker, "u-chief", now); err != nil {
		t.Fatal(err)
	}
	if err := db.store.Update(ctx, scope, acker, cond); !errors.Is(err, alert.ErrConflict) {
		t.Fatalf("stale Update err = %v, want ErrConflict", err)
	}

	got, err := db.store.Get(ctx, scope, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, "AssignedToRole", "Chief Engineer", got.AssignedToRole)
	assertEqual(t, "Status", string(alert.StatusOpen), string(got.Status))
	assertEqual(t, "Version", int64(2), got.Version)
}

func TestUpdate_AssignmentRoundTrip(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()
	scope := db.scope("v1")
	a := db.seed(t, &alert.Alert{ScopeID: "v1"})

	now := time.Now().Truncate(time.Microsecond).UTC()
	cond := alert.ConditionOf(a)
	err := alert.ApplyAssignment(a, alert.Assignment{
		Target:   alert.Target{Role: "Chief Engineer"},
		Priority: alert.PriorityHigh,
		Notes:    "before departure",
	}, "u-master", now)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.store.Update(ctx, scope, a, cond); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := db.store.Get(ctx, scope, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, "AssignedToRole", "Chief Engineer", got.AssignedToRole)
	assertEqual(t, "AssignedToUser", "", got.AssignedToUser)
	assertEqual(t, "AssignedBy", "u-master", got.AssignedBy)
	assertEqual(t, "AssignmentNotes", "before departure", got.AssignmentNotes)
	assertEqual(t, "AssignmentPriority", string(alert.PriorityHigh), string(got.AssignmentPriority))

	cond = alert.ConditionOf(got)
	if err := alert.ClearAssignment(got, now); err != nil {
		t.Fatal(err)
	}
	if err := db.store.Update(ctx, scope, got, cond); err != nil {
		t.Fatalf("clear Update: %v", err)
	}
	cleared, _ := db.store.Get(ctx, scope, a.ID)
	if cleared.Assigned() || cleared.AssignmentPriority != "" || cleared.AssignedAt != nil {
		t.Errorf("assignment not cleared: %+v", cleared)
	}
}

func TestReleaseExpiredSnoozes(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond).UTC()
	past, future := now.Add(-time.Minute), now.Add(time.Hour)
	lapsed := db.seed(t, &alert.Alert{Status: alert.StatusSnoozed, SnoozedUntil: &past, SnoozeCount: 1})
	active := db.seed(t, &alert.Alert{Status: alert.StatusSnoozed, SnoozedUntil: &future, SnoozeCount: 1})

	tenants, err := db.store.ReleaseExpiredSnoozes(ctx, now)
	if err != nil {
		t.Fatalf("ReleaseExpiredSnoozes: %v", err)
	}
	var found bool
	for _, tn := range tenants {
		if tn == db.tenant {
			found = true
		}
	}
	if !found {
		t.Errorf("tenants = %v, want to include %s", tenants, db.tenant)
	}

	got, _ := db.store.Get(ctx, db.scope(""), lapsed.ID)
	assertEqual(t, "lapsed Status", string(alert.StatusOpen), string(got.Status))
	assertEqual(t, "lapsed SnoozeCount", 1, got.SnoozeCount)
	got, _ = db.store.Get(ctx, db.scope(""), active.ID)
	assertEqual(t, "active Status", string(alert.StatusSnoozed), string(got.Status))
}

func TestMembers(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	for _, m := range []alert.Member{
		{ScopeID: "v1", UserID: "u2", DisplayName: "Zed", Role: "Bosun"},
		{ScopeID: "v1", UserID: "u1", DisplayName: "Amy", Role: "Chief Engineer"},
		{ScopeID: "v2", UserID: "u3", DisplayName: "Bo", Role: "Master"},
	} {
		err := db.exec(ctx, `INSERT INTO crew_members (tenant_id, scope_id, user_id, display_name, role)
			VALUES ($1, $2, $3, $4, $5)`, db.tenant, m.ScopeID, m.UserID, m.DisplayName, m.Role)
		if err != nil {
			t.Fatalf("insert crew: %v", err)
		}
	}

	got, err := db.store.Members(ctx, db.tenant, "v1")
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(got) != 2 || got[0].DisplayName != "Amy" {
		t.Errorf("vessel members = %+v", got)
	}
	all, err := db.store.Members(ctx, db.tenant, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("tenant members = %d, want 3", len(all))
	}
}

func TestPreferences(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	if _, ok, err := db.store.GetPreferences(ctx, db.tenant, "u1"); ok || err != nil {
		t.Fatalf("GetPreferences before put: ok=%v err=%v", ok, err)
	}

	now := time.Now().Truncate(time.Microsecond).UTC()
	p := &alert.Preferences{TenantID: db.tenant, UserID: "u1", HelperDismissed: true, UpdatedAt: now}
	if err := db.store.PutPreferences(ctx, p); err != nil {
		t.Fatalf("PutPreferences: %v", err)
	}
	// upsert
	p.HelperDismissed = false
	if err := db.store.PutPreferences(ctx, p); err != nil {
		t.Fatalf("PutPreferences again: %v", err)
	}

	got, ok, err := db.store.GetPreferences(ctx, db.tenant, "u1")
	if err != nil || !ok {
		t.Fatalf("GetPreferences: ok=%v err=%v", ok, err)
	}
	assertEqual(t, "HelperDismissed", false, got.HelperDismissed)
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, now)
	}
}

func assertEqual[T comparable](t *testing.T, field string, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %v, got %v", field, want, got)
	}
}
