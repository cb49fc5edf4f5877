package alert

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Sweeper periodically writes elapsed snoozes back to open. It is optional:
// every read path already derives the effective status.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	logger   log.Logger
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(svc *Service, interval time.Duration, logger log.Logger) *Sweeper {
	if logger == nil {
		logger = log.Nop()
	}
	return &Sweeper{svc: svc, interval: interval, logger: logger}
}

// Run sweeps until ctx is done. Store errors are logged and retried on the
// next tick.
func (w *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := w.svc.ReleaseExpiredSnoozes(ctx)
			if err != nil {
				w.logger.Warn(ctx, "snooze sweep failed", "error", err)
				continue
			}
			if n > 0 {
				w.logger.Info(ctx, "released expired snoozes", "tenants", n)
			}
		}
	}
}
