// Package alertsync keeps a viewer's alert snapshot current. A Session
// refreshes on a poll ticker and whenever the tenant's invalidation Feed
// reports a committed change.
package alertsync

import (
	"context"
	"sync"

	"github.com/linnemanlabs/bosun/internal/alert"
)

// subscriptionBuffer bounds queued changes per subscriber. Changes are
// invalidations, so dropping one while the buffer is full loses nothing the
// pending refresh will not pick up.
const subscriptionBuffer = 16

// Feed is a tenant-scoped invalidation channel.
type Feed interface {
	alert.ChangePublisher
	Subscribe(ctx context.Context, tenantID string) (Subscription, error)
}

// Subscription delivers changes for one tenant until closed. C is closed
// when the subscription ends, whether by Close or by the feed.
type Subscription interface {
	C() <-chan alert.Change
	Close() error
}

// LocalFeed is an in-process Feed for single-instance deployments and tests.
type LocalFeed struct {
	mu   sync.Mutex
	subs map[string]map[*localSub]struct{} // tenant -> subscribers
}

// NewLocalFeed creates an empty in-process feed.
func NewLocalFeed() *LocalFeed {
	return &LocalFeed{subs: make(map[string]map[*localSub]struct{})}
}

// Publish fans c out to the tenant's subscribers without blocking.
func (f *LocalFeed) Publish(_ context.Context, c alert.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs[c.TenantID] {
		select {
		case s.ch <- c:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for tenantID.
func (f *LocalFeed) Subscribe(_ context.Context, tenantID string) (Subscription, error) {
	s := &localSub{feed: f, tenant: tenantID, ch: make(chan alert.Change, subscriptionBuffer)}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[tenantID] == nil {
		f.subs[tenantID] = make(map[*localSub]struct{})
	}
	f.subs[tenantID][s] = struct{}{}
	return s, nil
}

// Subscribers returns the number of live subscriptions for tenantID.
func (f *LocalFeed) Subscribers(tenantID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[tenantID])
}

type localSub struct {
	feed   *LocalFeed
	tenant string
	ch     chan alert.Change
	once   sync.Once
}

func (s *localSub) C() <-chan alert.Change { return s.ch }

func (s *localSub) Close() error {
	s.once.Do(func() {
		f := s.feed
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[s.tenant], s)
		if len(f.subs[s.tenant]) == 0 {
			delete(f.subs, s.tenant)
		}
		// closed under the feed lock so Publish never sends on a closed channel
		close(s.ch)
	})
	return nil
}
