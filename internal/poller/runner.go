// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run polls once immediately, then on every tick, and emits each Result on
// out. One goroutine per device. No overlap: a slow cycle delays the next
// tick instead of stacking. Run returns when ctx is done.
func (p *Poller) Run(ctx context.Context, out chan<- Result) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		res := p.PollOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- res:
		case <-ctx.Done():
			return
		}
		p.progress.Touch()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
