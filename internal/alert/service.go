package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

var tracer = otel.Tracer("github.com/linnemanlabs/bosun/internal/alert")

// DefaultLivePageSize caps the live view listing.
const DefaultLivePageSize = 20

// View selects between the capped live listing and the full list.
type View string

const (
	ViewLive View = "live"
	ViewFull View = "full"
)

// Snapshot is the classified active alert set for one principal.
type Snapshot struct {
	Alerts         []*Alert  `json:"alerts"`
	Buckets        Buckets   `json:"buckets"`
	Unread         int       `json:"unread"`
	ActionRequired []*Alert  `json:"action_required"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// SnoozeResult is the outcome of a successful snooze.
type SnoozeResult struct {
	Alert     *Alert `json:"alert"`
	Remaining int    `json:"remaining"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLivePageSize overrides the live view cap.
func WithLivePageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.livePageSize = n
		}
	}
}

// Service is the business boundary for alert triage operations.
type Service struct {
	store        Store
	publisher    ChangePublisher
	logger       log.Logger
	metrics      *Metrics
	now          func() time.Time
	livePageSize int
}

// NewService creates a new alert service. publisher and metrics may be nil.
func NewService(store Store, publisher ChangePublisher, logger log.Logger, metrics *Metrics, opts ...Option) *Service {
	if store == nil {
		panic(xerrors.New("alert store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	s := &Service{
		store:        store,
		publisher:    publisher,
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
		livePageSize: DefaultLivePageSize,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create stores a producer alert inside the caller's tenant and scope.
func (s *Service) Create(ctx context.Context, p Principal, a *Alert) (*Alert, error) {
	ctx, span := s.startSpan(ctx, "alert.Service.Create", p, "")
	defer span.End()

	now := s.clock()
	a = a.Clone()
	a.ID = ulid.Make().String()
	a.TenantID = p.TenantID
	a.Title = strings.TrimSpace(a.Title)
	a.Status = StatusOpen
	a.CreatedAt = now
	a.UpdatedAt = now
	a.AcknowledgedAt, a.AcknowledgedBy = nil, ""
	a.SnoozeCount, a.SnoozedUntil, a.SnoozeReason = 0, nil, ""
	a.AssignedToUser, a.AssignedToRole, a.AssignedBy, a.AssignedAt = "", "", "", nil
	a.AssignmentNotes, a.AssignmentPriority = "", ""

	if err := validateNew(a, p); err != nil {
		endSpan(span, err)
		return nil, err
	}
	if err := s.store.Create(ctx, a); err != nil {
		endSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("bosun.alert.id", a.ID))
	s.metrics.AlertsCreated.WithLabelValues(string(a.Severity)).Inc()
	s.publish(ctx, Change{TenantID: a.TenantID, AlertID: a.ID, Op: "create", At: now})
	return a, nil
}

func validateNew(a *Alert, p Principal) error {
	if p.TenantID == "" {
		return fmt.Errorf("%w: tenant is required", ErrValidation)
	}
	if a.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", ErrValidation, a.Severity)
	}
	if !p.Scope().Allows(a) {
		return fmt.Errorf("%w: scope %q is outside the caller's scope", ErrValidation, a.ScopeID)
	}
	return nil
}

// Get returns one alert with its effective status.
func (s *Service) Get(ctx context.Context, p Principal, id string) (*Alert, error) {
	ctx, span := s.startSpan(ctx, "alert.Service.Get", p, id)
	defer span.End()

	a, err := s.store.Get(ctx, p.Scope(), id)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	return present(a, s.clock()), nil
}

// Snapshot lists the active alerts visible to p and classifies them.
func (s *Service) Snapshot(ctx context.Context, p Principal, view View) (*Snapshot, error) {
	ctx, span := s.startSpan(ctx, "alert.Service.Snapshot", p, "")
	defer span.End()

	q := ListQuery{}
	if view != ViewFull {
		view = ViewLive
		q.Limit = s.livePageSize
	}
	span.SetAttributes(attribute.String("bosun.alert.view", string(view)))

	alerts, err := s.store.ListActive(ctx, p.Scope(), q)
	s.metrics.SnapshotsTotal.WithLabelValues(string(view), ResultLabel(err)).Inc()
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	now := s.clock()
	for i, a := range alerts {
		alerts[i] = present(a, now)
	}
	buckets := Classify(alerts, now)
	snap := &Snapshot{
		Alerts:         alerts,
		Buckets:        buckets,
		Unread:         Unread(alerts, now),
		ActionRequired: ActionRequired(buckets, now),
		GeneratedAt:    now,
	}
	s.metrics.SnapshotAlerts.Observe(float64(len(alerts)))
	span.SetAttributes(
		attribute.Int("bosun.alert.count", len(alerts)),
		attribute.Int("bosun.alert.unread", snap.Unread),
	)
	return snap, nil
}

// Queue returns the alerts assigned to p directly or through one of p's roles.
func (s *Service) Queue(ctx context.Context, p Principal) ([]*Alert, error) {
	ctx, span := s.startSpan(ctx, "alert.Service.Queue", p, "")
	defer span.End()

	alerts, err := s.store.ListAssigned(ctx, p.Scope(), p.UserID, p.Roles)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	now := s.clock()
	out := make([]*Alert, 0, len(alerts))
	for _, a := range alerts {
		if AssignedTo(a, p) {
			out = append(out, present(a, now))
		}
	}
	SortQueue(out)
	return out, nil
}

// Acknowledge marks an alert as seen by p. Acknowledging an already
// acknowledged alert changes nothing.
func (s *Service) Acknowledge(ctx context.Context, p Principal, id string) (*Alert, error) {
	return s.mutate(ctx, p, id, "acknowledge", func(a *Alert, now time.Time) (bool, error) {
		return ApplyAcknowledge(a, p.UserID, now)
	})
}

// Unacknowledge returns an acknowledged alert to open.
func (s *Service) Unacknowledge(ctx context.Context, p Principal, id string) (*Alert, error) {
	return s.mutate(ctx, p, id, "unacknowledge", func(a *Alert, now time.Time) (bool, error) {
		return true, ApplyUnacknowledge(a, now)
	})
}

// Snooze suppresses an alert for d, consuming one of its snoozes.
func (s *Service) Snooze(ctx context.Context, p Principal, id string, d time.Duration, reason string) (*SnoozeResult, error) {
	a, err := s.mutate(ctx, p, id, "snooze", func(a *Alert, now time.Time) (bool, error) {
		return true, ApplySnooze(a, d, strings.TrimSpace(reason), now)
	})
	if err != nil {
		return nil, err
	}
	return &SnoozeResult{Alert: a, Remaining: a.RemainingSnoozes()}, nil
}

// Allowance reports the remaining snooze budget of an alert before a snooze.
func (s *Service) Allowance(ctx context.Context, p Principal, id string) (SnoozeAllowance, error) {
	ctx, span := s.startSpan(ctx, "alert.Service.Allowance", p, id)
	defer span.End()

	a, err := s.store.Get(ctx, p.Scope(), id)
	if err != nil {
		endSpan(span, err)
		return SnoozeAllowance{}, err
	}
	allowance := AllowanceOf(a)
	span.SetAttributes(attribute.Int("bosun.alert.snoozes_remaining", allowance.Remaining))
	return allowance, nil
}

// Assign delegates an alert to a user or a role, replacing any previous
// assignment.
func (s *Service) Assign(ctx context.Context, p Principal, id string, as Assignment) (*Alert, error) {
	return s.mutate(ctx, p, id, "assign", func(a *Alert, now time.Time) (bool, error) {
		return true, ApplyAssignment(a, as, p.UserID, now)
	})
}

// Unassign clears the assignment of an alert.
func (s *Service) Unassign(ctx context.Context, p Principal, id string) (*Alert, error) {
	return s.mutate(ctx, p, id, "unassign", func(a *Alert, now time.Time) (bool, error) {
		if !a.Assigned() {
			return false, nil
		}
		return true, ClearAssignment(a, now)
	})
}

// SetStatus is the producer path for escalation, resolution and closure.
func (s *Service) SetStatus(ctx context.Context, p Principal, id string, to Status) (*Alert, error) {
	return s.mutate(ctx, p, id, "set_status", func(a *Alert, now time.Time) (bool, error) {
		return ApplyStatus(a, to, now)
	})
}

// Candidates lists the crew who may receive an alert, limited to the alert's
// vessel. A global alert lists the whole tenant.
func (s *Service) Candidates(ctx context.Context, p Principal, id string) ([]Member, error) {
	ctx, span := s.startSpan(ctx, "alert.Service.Candidates", p, id)
	defer span.End()

	a, err := s.store.Get(ctx, p.Scope(), id)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	members, err := s.store.Members(ctx, a.TenantID, a.ScopeID)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	return members, nil
}

// Preferences returns p's preference record, or defaults when none exists.
func (s *Service) Preferences(ctx context.Context, p Principal) (*Preferences, error) {
	prefs, ok, err := s.store.GetPreferences(ctx, p.TenantID, p.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Preferences{TenantID: p.TenantID, UserID: p.UserID}, nil
	}
	return prefs, nil
}

// SetPreferences stores p's preference record.
func (s *Service) SetPreferences(ctx context.Context, p Principal, prefs Preferences) (*Preferences, error) {
	if p.TenantID == "" || p.UserID == "" {
		return nil, fmt.Errorf("%w: preferences need a tenant and a user", ErrValidation)
	}
	prefs.TenantID = p.TenantID
	prefs.UserID = p.UserID
	prefs.UpdatedAt = s.clock()
	if err := s.store.PutPreferences(ctx, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// ReleaseExpiredSnoozes writes open back to every alert whose snooze has
// elapsed and notifies the affected tenants. Reads already treat those alerts
// as open; this only brings the stored status in line for outside readers.
func (s *Service) ReleaseExpiredSnoozes(ctx context.Context) (int, error) {
	now := s.clock()
	tenants, err := s.store.ReleaseExpiredSnoozes(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, t := range tenants {
		s.publish(ctx, Change{TenantID: t, Op: "snooze_expired", At: now})
	}
	s.metrics.SnoozesReleased.Add(float64(len(tenants)))
	return len(tenants), nil
}

func (s *Service) mutate(ctx context.Context, p Principal, id, op string, apply func(a *Alert, now time.Time) (bool, error)) (*Alert, error) {
	ctx, span := s.startSpan(ctx, "alert.Service."+op, p, id)
	defer span.End()

	a, changed, err := s.applyAndStore(ctx, p, id, apply)
	result := ResultLabel(err)
	if err == nil && !changed {
		result = "noop"
	}
	s.metrics.MutationsTotal.WithLabelValues(op, result).Inc()
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("bosun.alert.status", string(a.Status)))
	if changed {
		s.publish(ctx, Change{TenantID: a.TenantID, AlertID: a.ID, Op: op, At: a.UpdatedAt})
	}
	return present(a, s.clock()), nil
}

func (s *Service) applyAndStore(ctx context.Context, p Principal, id string, apply func(a *Alert, now time.Time) (bool, error)) (*Alert, bool, error) {
	scope := p.Scope()
	a, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return nil, false, err
	}
	cond := ConditionOf(a)
	changed, err := apply(a, s.clock())
	if err != nil || !changed {
		return a, false, err
	}
	if err := s.store.Update(ctx, scope, a, cond); err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (s *Service) publish(ctx context.Context, c Change) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, c)
	s.metrics.ChangesPublished.WithLabelValues(ResultLabel(err)).Inc()
	if err != nil {
		// the write is committed; viewers catch up on their next poll
		s.logger.Warn(ctx, "failed to publish alert change",
			"tenant_id", c.TenantID,
			"alert_id", c.AlertID,
			"op", c.Op,
			"error", err,
		)
	}
}

// clock returns now truncated to the store's timestamp precision.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) startSpan(ctx context.Context, name string, p Principal, id string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("bosun.tenant.id", p.TenantID)}
	if id != "" {
		attrs = append(attrs, attribute.String("bosun.alert.id", id))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// present returns the copy of a callers see, with an elapsed snooze shown as open.
func present(a *Alert, now time.Time) *Alert {
	cp := a.Clone()
	ExpireSnooze(cp, now)
	return cp
}
