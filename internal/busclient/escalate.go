// internal/busclient/escalate.go
package busclient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pilab/busguard/internal/deadline"
)

// Reinit tears down the current handle and opens a fresh one. With hard set
// it first attempts a hard bus reset, subject to privilege and cooldown; a
// refused hard reset silently degrades to the soft path.
func (c *Client[H]) Reinit(ctx context.Context, hard bool) error {
	c.op.Lock()
	defer c.op.Unlock()
	return c.reinit(ctx, hard)
}

// escalate decides, after the n-th consecutive failure, whether the next
// attempt gets a fresh handle and whether the bus itself is reset first.
func (c *Client[H]) escalate(ctx context.Context, n int) {
	if n < c.policy.SoftReinitAfter {
		return
	}

	c.mu.Lock()
	last := c.lastReinit
	c.mu.Unlock()
	if c.policy.ReinitMinInterval > 0 && !last.IsZero() && c.now().Sub(last) < c.policy.ReinitMinInterval {
		return
	}

	hard := c.policy.HardResetAfter > 0 && n >= c.policy.HardResetAfter
	if err := c.reinit(ctx, hard); err != nil {
		c.throttle.Warn(c.log, "reinit", "re-init failed", "hard", hard, "error", err)
	}
}

func (c *Client[H]) reinit(ctx context.Context, hard bool) error {
	if hard {
		c.hardReset(ctx)
	}

	c.teardown().report(c.log)

	if err := c.sleep(ctx, c.policy.SettleDelay); err != nil {
		return err
	}

	lockTimeout := c.policy.OpenLockTimeout
	if lockTimeout <= 0 {
		lockTimeout = c.policy.LockTimeout
	}

	var h H
	err := c.lock.WithLock(ctx, lockTimeout, func() error {
		var err error
		h, err = deadline.Call(ctx, c.policy.OpTimeout, c.binding.Open)
		return err
	})

	c.mu.Lock()
	c.lastReinit = c.now()
	c.stats.SoftReinits++
	if err == nil {
		c.handle = h
		c.live = true
	}
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.Reinit(c.name, "soft", err)
	}
	if err != nil {
		return fmt.Errorf("busclient: %s: open: %w", c.name, err)
	}

	c.progress.Touch()
	c.log.Debug("device re-initialized")
	return nil
}

// hardReset records the attempt time before doing anything else, so the
// cooldown holds even when the reset itself fails or hangs.
func (c *Client[H]) hardReset(ctx context.Context) {
	if c.resetter == nil {
		return
	}
	if !c.resetter.Privileged() {
		c.refuseHardReset("unprivileged")
		return
	}

	c.mu.Lock()
	now := c.now()
	if !c.lastHardReset.IsZero() && now.Sub(c.lastHardReset) < c.policy.HardResetCooldown {
		c.mu.Unlock()
		c.refuseHardReset("cooldown")
		return
	}
	c.lastHardReset = now
	c.stats.HardResets++
	c.mu.Unlock()

	// the old handle is useless after the bus is yanked
	c.teardown().report(c.log)

	err := c.lock.WithLock(ctx, c.policy.LockTimeout, func() error {
		return c.resetter.HardReset(ctx)
	})
	c.progress.Touch()

	if c.observer != nil {
		c.observer.Reinit(c.name, "hard", err)
	}
	if err != nil {
		c.throttle.Warn(c.log, "hard_reset", "hard bus reset failed", "error", err)
		return
	}
	c.log.Info("hard bus reset done")
}

func (c *Client[H]) refuseHardReset(reason string) {
	c.mu.Lock()
	c.stats.HardResetsRefused++
	c.mu.Unlock()

	c.log.Debug("hard bus reset skipped", "reason", reason)
	if c.observer != nil {
		c.observer.HardResetRefused(c.name, reason)
	}
}

// bestEffort is the outcome of a step that must never abort recovery.
type bestEffort struct {
	step string
	err  error
}

func (b bestEffort) report(l *slog.Logger) {
	if b.err != nil {
		l.Debug("best-effort step failed", "step", b.step, "error", b.err)
	}
}

func (c *Client[H]) teardown() bestEffort {
	c.mu.Lock()
	if !c.live {
		c.mu.Unlock()
		return bestEffort{step: "teardown"}
	}
	h := c.handle
	var zero H
	c.handle = zero
	c.live = false
	c.mu.Unlock()

	return bestEffort{step: "teardown", err: c.closeHandle(h)}
}

func (c *Client[H]) closeHandle(h H) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during close: %v", p)
		}
	}()
	return c.binding.Close(h)
}
