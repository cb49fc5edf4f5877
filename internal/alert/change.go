package alert

import (
	"context"
	"time"
)

// Change describes a committed alert mutation. It is the payload of the
// invalidation feed; consumers re-read the store instead of applying it.
type Change struct {
	TenantID string    `json:"tenant_id"`
	AlertID  string    `json:"alert_id,omitempty"`
	Op       string    `json:"op"`
	At       time.Time `json:"at"`
}

// ChangePublisher announces committed mutations to other viewers of a tenant.
type ChangePublisher interface {
	Publish(ctx context.Context, c Change) error
}
