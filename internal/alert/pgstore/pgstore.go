// Package pgstore provides a PostgreSQL implementation of alert.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/bosun/internal/alert"
)

var tracer = otel.Tracer("github.com/linnemanlabs/bosun/internal/alert/pgstore")

//go:embed schema.sql
var schema string

// Store persists alerts in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const alertColumns = `id, tenant_id, scope_id, title, description, severity, status, due_at,
	source_module, related_entity_type, related_entity_id, created_at, updated_at, version,
	acknowledged_at, acknowledged_by, snooze_count, snoozed_until, snooze_reason,
	assigned_to_user, assigned_to_role, assigned_by, assigned_at, assignment_notes, assignment_priority`

// scopePredicate restricts rows to the tenant in $1 and, unless $2 grants
// fleet-wide access, to global rows plus the vessel in $3.
const scopePredicate = `tenant_id = $1 AND ($2::boolean OR scope_id IS NULL OR scope_id = $3)`

// Create inserts a new alert.
func (s *Store) Create(ctx context.Context, a *alert.Alert) error {
	ctx, span := startSpan(ctx, "pgstore.Create", "INSERT")
	defer span.End()

	query := `INSERT INTO alerts (` + alertColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`

	a.Version = 1
	_, err := s.pool.Exec(ctx, query,
		a.ID, a.TenantID, nullable(a.ScopeID), a.Title, a.Description, string(a.Severity), string(a.Status), a.DueAt,
		nullable(a.SourceModule), nullable(a.RelatedEntityType), nullable(a.RelatedEntityID), a.CreatedAt, a.UpdatedAt, a.Version,
		a.AcknowledgedAt, nullable(a.AcknowledgedBy), a.SnoozeCount, a.SnoozedUntil, nullable(a.SnoozeReason),
		nullable(a.AssignedToUser), nullable(a.AssignedToRole), nullable(a.AssignedBy), a.AssignedAt,
		nullable(a.AssignmentNotes), nullable(string(a.AssignmentPriority)),
	)
	if err != nil {
		return fail(span, storeErr("insert alert", err))
	}
	return nil
}

// Get retrieves an alert by ID inside scope.
func (s *Store) Get(ctx context.Context, scope alert.Scope, id string) (*alert.Alert, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE ` + scopePredicate + ` AND id = $4`
	a, err := scanAlert(s.pool.QueryRow(ctx, query, scope.TenantID, scope.FleetWide, scope.ScopeID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, alert.ErrNotFound
		}
		return nil, fail(span, storeErr("get alert", err))
	}
	return a, nil
}

// ListActive returns the non-terminal alerts inside scope, red first, then by
// due date with undated rows last, then newest first.
func (s *Store) ListActive(ctx context.Context, scope alert.Scope, q alert.ListQuery) ([]*alert.Alert, error) {
	ctx, span := startSpan(ctx, "pgstore.ListActive", "SELECT")
	defer span.End()

	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	query := `SELECT ` + alertColumns + ` FROM alerts
	WHERE ` + scopePredicate + ` AND status = ANY($4)
	ORDER BY CASE severity WHEN 'red' THEN 0 WHEN 'orange' THEN 1 WHEN 'yellow' THEN 2 WHEN 'green' THEN 3 ELSE 4 END,
		due_at ASC NULLS LAST,
		created_at DESC
	LIMIT $5`

	rows, err := s.pool.Query(ctx, query, scope.TenantID, scope.FleetWide, scope.ScopeID, statusStrings(alert.ActiveStatuses), limit)
	if err != nil {
		return nil, fail(span, storeErr("list active alerts", err))
	}
	out, err := collectAlerts(rows)
	if err != nil {
		return nil, fail(span, storeErr("list active alerts", err))
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

// ListAssigned returns the non-terminal alerts assigned to userID or to one of
// roles. Role membership is whatever the caller holds right now; nothing is
// materialized per user.
func (s *Store) ListAssigned(ctx context.Context, scope alert.Scope, userID string, roles []string) ([]*alert.Alert, error) {
	ctx, span := startSpan(ctx, "pgstore.ListAssigned", "SELECT")
	defer span.End()

	if roles == nil {
		roles = []string{}
	}

	query := `SELECT ` + alertColumns + ` FROM alerts
	WHERE ` + scopePredicate + `
		AND status NOT IN ('resolved', 'closed')
		AND ((assigned_to_user IS NOT NULL AND assigned_to_user = $4) OR assigned_to_role = ANY($5))
	ORDER BY CASE assignment_priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 ELSE 2 END,
		assigned_at DESC NULLS LAST`

	rows, err := s.pool.Query(ctx, query, scope.TenantID, scope.FleetWide, scope.ScopeID, userID, roles)
	if err != nil {
		return nil, fail(span, storeErr("list assigned alerts", err))
	}
	out, err := collectAlerts(rows)
	if err != nil {
		return nil, fail(span, storeErr("list assigned alerts", err))
	}
	return out, nil
}

// Update writes the mutable columns of a if the stored row is still at
// cond.Version, and advances a.Version on success. A row outside scope reads
// as missing.
func (s *Store) Update(ctx context.Context, scope alert.Scope, a *alert.Alert, cond alert.Condition) error {
	ctx, span := startSpan(ctx, "pgstore.Update", "UPDATE")
	defer span.End()

	query := `UPDATE alerts SET
		version             = version + 1,
		status              = $6,
		updated_at          = $7,
		acknowledged_at     = $8,
		acknowledged_by     = $9,
		snooze_count        = $10,
		snoozed_until       = $11,
		snooze_reason       = $12,
		assigned_to_user    = $13,
		assigned_to_role    = $14,
		assigned_by         = $15,
		assigned_at         = $16,
		assignment_notes    = $17,
		assignment_priority = $18
	WHERE ` + scopePredicate + ` AND id = $4 AND version = $5`

	tag, err := s.pool.Exec(ctx, query,
		scope.TenantID, scope.FleetWide, scope.ScopeID, a.ID, cond.Version,
		string(a.Status), a.UpdatedAt, a.AcknowledgedAt, nullable(a.AcknowledgedBy),
		a.SnoozeCount, a.SnoozedUntil, nullable(a.SnoozeReason),
		nullable(a.AssignedToUser), nullable(a.AssignedToRole), nullable(a.AssignedBy), a.AssignedAt,
		nullable(a.AssignmentNotes), nullable(string(a.AssignmentPriority)),
	)
	if err != nil {
		return fail(span, storeErr("update alert", err))
	}
	if tag.RowsAffected() == 1 {
		a.Version = cond.Version + 1
		return nil
	}

	// nothing matched: either the row is gone from this scope or it moved on
	if _, err := s.Get(ctx, scope, a.ID); err != nil {
		return err
	}
	return alert.ErrConflict
}

// ReleaseExpiredSnoozes reopens every elapsed snooze across all tenants and
// returns the tenants it touched.
func (s *Store) ReleaseExpiredSnoozes(ctx context.Context, now time.Time) ([]string, error) {
	ctx, span := startSpan(ctx, "pgstore.ReleaseExpiredSnoozes", "UPDATE")
	defer span.End()

	rows, err := s.pool.Query(ctx, `UPDATE alerts
		SET status = 'open', snoozed_until = NULL, updated_at = $1, version = version + 1
		WHERE status = 'snoozed' AND (snoozed_until IS NULL OR snoozed_until <= $1)
		RETURNING tenant_id`, now)
	if err != nil {
		return nil, fail(span, storeErr("release snoozes", err))
	}
	tenants, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fail(span, storeErr("release snoozes", err))
	}
	slices.Sort(tenants)
	return slices.Compact(tenants), nil
}

// Members returns the crew for scopeID, or the whole tenant when scopeID is empty.
func (s *Store) Members(ctx context.Context, tenantID, scopeID string) ([]alert.Member, error) {
	ctx, span := startSpan(ctx, "pgstore.Members", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT tenant_id, scope_id, user_id, display_name, role
		FROM crew_members
		WHERE tenant_id = $1 AND ($2 = '' OR scope_id = $2)
		ORDER BY display_name, user_id`, tenantID, scopeID)
	if err != nil {
		return nil, fail(span, storeErr("list crew", err))
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (alert.Member, error) {
		var m alert.Member
		err := row.Scan(&m.TenantID, &m.ScopeID, &m.UserID, &m.DisplayName, &m.Role)
		return m, err
	})
	if err != nil {
		return nil, fail(span, storeErr("list crew", err))
	}
	return members, nil
}

// GetPreferences reads the preference record of a user.
func (s *Store) GetPreferences(ctx context.Context, tenantID, userID string) (*alert.Preferences, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetPreferences", "SELECT")
	defer span.End()

	p := alert.Preferences{TenantID: tenantID, UserID: userID}
	err := s.pool.QueryRow(ctx, `SELECT helper_dismissed, updated_at FROM user_preferences
		WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID).Scan(&p.HelperDismissed, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fail(span, storeErr("get preferences", err))
	}
	return &p, true, nil
}

// PutPreferences upserts the preference record of a user.
func (s *Store) PutPreferences(ctx context.Context, p *alert.Preferences) error {
	ctx, span := startSpan(ctx, "pgstore.PutPreferences", "UPSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx, `INSERT INTO user_preferences (tenant_id, user_id, helper_dismissed, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			helper_dismissed = EXCLUDED.helper_dismissed,
			updated_at       = EXCLUDED.updated_at`,
		p.TenantID, p.UserID, p.HelperDismissed, p.UpdatedAt)
	if err != nil {
		return fail(span, storeErr("put preferences", err))
	}
	return nil
}

func collectAlerts(rows pgx.Rows) ([]*alert.Alert, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*alert.Alert, error) {
		return scanAlert(row)
	})
}

// scanAlert scans a single row in alertColumns order.
func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var (
		a                                             alert.Alert
		severity, status                              string
		scopeID, sourceModule, relType, relID         *string
		ackBy, snoozeReason, toUser, toRole, assignBy *string
		notes, priority                               *string
	)
	err := row.Scan(
		&a.ID, &a.TenantID, &scopeID, &a.Title, &a.Description, &severity, &status, &a.DueAt,
		&sourceModule, &relType, &relID, &a.CreatedAt, &a.UpdatedAt, &a.Version,
		&a.AcknowledgedAt, &ackBy, &a.SnoozeCount, &a.SnoozedUntil, &snoozeReason,
		&toUser, &toRole, &assignBy, &a.AssignedAt, &notes, &priority,
	)
	if err != nil {
		return nil, err
	}
	a.Severity = alert.Severity(severity)
	a.Status = alert.Status(status)
	a.ScopeID = deref(scopeID)
	a.SourceModule = deref(sourceModule)
	a.RelatedEntityType = deref(relType)
	a.RelatedEntityID = deref(relID)
	a.AcknowledgedBy = deref(ackBy)
	a.SnoozeReason = deref(snoozeReason)
	a.AssignedToUser = deref(toUser)
	a.AssignedToRole = deref(toRole)
	a.AssignedBy = deref(assignBy)
	a.AssignmentNotes = deref(notes)
	a.AssignmentPriority = alert.Priority(deref(priority))
	return &a, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// storeErr wraps a driver error, tagging connection-class failures as
// alert.ErrTransientIO so callers can offer a retry.
func storeErr(op string, err error) error {
	if transient(err) {
		return fmt.Errorf("%s: %w: %w", op, alert.ErrTransientIO, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08: connection exception, 57P: operator intervention, 53300: too many connections
		return strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "57P") ||
			pgErr.Code == "53300" ||
			pgErr.Code == "40001" ||
			pgErr.Code == "40P01"
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded) || isConnErr(err)
}

func isConnErr(err error) bool {
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

func statusStrings(in []alert.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
