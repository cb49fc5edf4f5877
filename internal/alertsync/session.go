package alertsync

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/bosun/internal/alert"
)

// DefaultPollInterval is the refresh period when no push arrives.
const DefaultPollInterval = 30 * time.Second

// Source produces the classified snapshot for a principal.
type Source interface {
	Snapshot(ctx context.Context, p alert.Principal, view alert.View) (*alert.Snapshot, error)
}

// DeliverFunc hands a fresh snapshot to the consumer. A non-nil error ends
// the session.
type DeliverFunc func(ctx context.Context, snap *alert.Snapshot) error

// Option configures a Session.
type Option func(*Session)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithView selects the live (capped) or full listing. Defaults to live.
func WithView(v alert.View) Option {
	return func(s *Session) { s.view = v }
}

// WithHooks installs observation hooks, usually Metrics.Hooks().
func WithHooks(h SessionHooks) Option {
	return func(s *Session) { s.hooks = h }
}

// Session keeps one viewer's snapshot current until its context ends.
type Session struct {
	src       Source
	feed      Feed
	principal alert.Principal
	logger    log.Logger
	interval  time.Duration
	view      alert.View
	hooks     SessionHooks
}

// NewSession creates a session for p. feed may be nil, in which case the
// session only polls.
func NewSession(src Source, feed Feed, p alert.Principal, logger log.Logger, opts ...Option) *Session {
	if src == nil {
		panic(xerrors.New("snapshot source is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	s := &Session{
		src:       src,
		feed:      feed,
		principal: p,
		logger:    logger.With("tenant_id", p.TenantID, "user_id", p.UserID),
		interval:  DefaultPollInterval,
		view:      alert.ViewLive,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run delivers an initial snapshot, then one after every poll tick and every
// pushed change, until ctx ends or deliver fails. Snapshot errors are logged
// and retried on the next trigger. When Run returns, the ticker is stopped
// and the subscription closed.
func (s *Session) Run(ctx context.Context, deliver DeliverFunc) error {
	if h := s.hooks.OnStart; h != nil {
		h()
	}
	if h := s.hooks.OnStop; h != nil {
		defer h()
	}

	sub := s.subscribe(ctx)
	defer func() {
		if sub != nil {
			_ = sub.Close()
		}
	}()

	if err := s.refresh(ctx, TriggerInitial, deliver); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		// a nil channel blocks forever, so an absent subscription leaves only the ticker
		var changes <-chan alert.Change
		if sub != nil {
			changes = sub.C()
		}

		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if sub == nil {
				sub = s.subscribe(ctx)
			}
			if err := s.refresh(ctx, TriggerPoll, deliver); err != nil {
				return err
			}

		case _, ok := <-changes:
			if !ok {
				s.logger.Warn(ctx, "alert feed subscription ended, falling back to polling")
				_ = sub.Close()
				sub = nil
				continue
			}
			drain(changes)
			if err := s.refresh(ctx, TriggerPush, deliver); err != nil {
				return err
			}
		}
	}
}

// subscribe returns nil when there is no feed or the feed is unavailable.
func (s *Session) subscribe(ctx context.Context) Subscription {
	if s.feed == nil {
		return nil
	}
	sub, err := s.feed.Subscribe(ctx, s.principal.TenantID)
	if h := s.hooks.OnSubscribe; h != nil {
		h(err)
	}
	if err != nil {
		s.logger.Warn(ctx, "alert feed unavailable, polling only", "error", err)
		return nil
	}
	return sub
}

// refresh returns an error only when the consumer rejected the snapshot
// while the session was still live.
func (s *Session) refresh(ctx context.Context, trigger Trigger, deliver DeliverFunc) error {
	start := time.Now()
	snap, err := s.src.Snapshot(ctx, s.principal, s.view)
	if h := s.hooks.OnRefresh; h != nil {
		h(trigger, time.Since(start).Seconds(), err)
	}
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn(ctx, "alert snapshot refresh failed", "trigger", string(trigger), "error", err)
		}
		return nil
	}
	if err := deliver(ctx, snap); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// drain discards queued changes so a burst costs one refresh.
func drain(ch <-chan alert.Change) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
