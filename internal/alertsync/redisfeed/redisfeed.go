// Package redisfeed implements the alert invalidation feed on Redis pub/sub,
// so every API instance sees changes committed by the others.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/bosun/internal/alert"
	"github.com/linnemanlabs/bosun/internal/alertsync"
)

// DefaultPrefix namespaces the per-tenant channels.
const DefaultPrefix = "bosun:alerts"

const subscriptionBuffer = 16

// Config configures the Redis feed.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Feed publishes and subscribes to alert changes on <prefix>:<tenant>.
type Feed struct {
	client *redis.Client
	prefix string
	logger log.Logger
}

var _ alertsync.Feed = (*Feed)(nil)

// New creates a Redis-backed feed. It does not dial; use Ping to check
// reachability.
func New(cfg Config, logger log.Logger) (*Feed, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(client, cfg.Prefix, logger), nil
}

// NewWithClient wraps an existing client. The feed takes ownership of it.
func NewWithClient(client *redis.Client, prefix string, logger log.Logger) *Feed {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Feed{client: client, prefix: prefix, logger: logger}
}

// Channel returns the pub/sub channel for tenantID.
func (f *Feed) Channel(tenantID string) string {
	return f.prefix + ":" + tenantID
}

// Publish sends c to the tenant's channel.
func (f *Feed) Publish(ctx context.Context, c alert.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := f.client.Publish(ctx, f.Channel(c.TenantID), payload).Err(); err != nil {
		return fmt.Errorf("%w: redis publish: %w", alert.ErrTransientIO, err)
	}
	return nil
}

// Subscribe opens a subscription on the tenant's channel and waits for
// Redis to confirm it.
func (f *Feed) Subscribe(ctx context.Context, tenantID string) (alertsync.Subscription, error) {
	ps := f.client.Subscribe(ctx, f.Channel(tenantID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: redis subscribe: %w", alert.ErrTransientIO, err)
	}

	s := &subscription{
		ps:      ps,
		ch:      make(chan alert.Change, subscriptionBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  f.logger.With("tenant_id", tenantID),
	}
	go s.pump(ps.Channel())
	return s, nil
}

// Ping checks that Redis is reachable.
func (f *Feed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (f *Feed) Close() error {
	return f.client.Close()
}

type subscription struct {
	ps      *redis.PubSub
	ch      chan alert.Change
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	err     error
	logger  log.Logger
}

func (s *subscription) C() <-chan alert.Change { return s.ch }

// Close ends the subscription and waits for the pump goroutine to exit.
func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
		<-s.stopped
	})
	return s.err
}

func (s *subscription) pump(msgs <-chan *redis.Message) {
	defer close(s.stopped)
	defer close(s.ch)

	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var c alert.Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				s.logger.Warn(context.Background(), "dropping malformed alert change", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case s.ch <- c:
			default:
				// a refresh is already queued
			}
		}
	}
}
