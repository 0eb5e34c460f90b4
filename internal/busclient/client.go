// internal/busclient/client.go
package busclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pilab/busguard/internal/deadline"
	"github.com/pilab/busguard/internal/obs"
	"github.com/pilab/busguard/internal/watchdog"
)

// Binding creates and destroys the software binding to one device on the
// bus. Open must leave the device in its baseline state (display cleared,
// sensor calibrated). Close is best effort: the handle may already be dead.
type Binding[H any] interface {
	Open(ctx context.Context) (H, error)
	Close(h H) error
}

// Locker serializes bus access across processes.
type Locker interface {
	WithLock(ctx context.Context, timeout time.Duration, fn func() error) error
}

// HardResetter performs OS/electrical level recovery of a wedged bus.
type HardResetter interface {
	Privileged() bool
	HardReset(ctx context.Context) error
}

// Observer receives protocol events. Implementations must be cheap and
// must not call back into the Client.
type Observer interface {
	Transaction(device, result string)
	Reinit(device, kind string, err error)
	HardResetRefused(device, reason string)
	Disabled(device string, on bool)
}

// Stats is a point-in-time copy of the client's protocol state.
type Stats struct {
	Failures          int
	SoftReinits       int
	HardResets        int
	HardResetsRefused int
	Probes            int
	Disabled          bool
	DisabledUntil     time.Time
	LastError         error
}

// Client owns one device handle and every piece of state the retry and
// escalation protocol needs. Create one per process per device and share it
// by pointer; transactions through one Client are strictly sequential.
type Client[H any] struct {
	name     string
	binding  Binding[H]
	lock     Locker
	policy   Policy
	resetter HardResetter
	progress *watchdog.Progress
	observer Observer
	log      *slog.Logger
	throttle *obs.Throttle

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// op serializes Perform, Reinit and Close.
	op sync.Mutex

	// mu guards the fields below; readers like Stats and Disabled only
	// take mu, never op.
	mu            sync.Mutex
	handle        H
	live          bool
	failures      int
	disabled      bool
	disabledUntil time.Time
	lastReinit    time.Time
	lastHardReset time.Time
	stats         Stats
}

type settings struct {
	policy   Policy
	resetter HardResetter
	progress *watchdog.Progress
	observer Observer
	log      *slog.Logger
	throttle *obs.Throttle
}

// Option configures a Client.
type Option func(*settings)

func WithPolicy(p Policy) Option               { return func(s *settings) { s.policy = p } }
func WithHardResetter(r HardResetter) Option   { return func(s *settings) { s.resetter = r } }
func WithProgress(p *watchdog.Progress) Option { return func(s *settings) { s.progress = p } }
func WithObserver(o Observer) Option           { return func(s *settings) { s.observer = o } }
func WithLogger(l *slog.Logger) Option         { return func(s *settings) { s.log = l } }
func WithThrottle(t *obs.Throttle) Option      { return func(s *settings) { s.throttle = t } }

// New creates a Client for the named device. Nothing touches the bus until
// the first Perform or Reinit.
func New[H any](name string, b Binding[H], l Locker, opts ...Option) *Client[H] {
	s := settings{policy: DefaultPolicy()}
	for _, o := range opts {
		o(&s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.throttle == nil {
		s.throttle = obs.NewThrottle(0)
	}
	if s.progress == nil {
		s.progress = watchdog.NewProgress()
	}
	if s.policy.Attempts < 1 {
		s.policy.Attempts = 1
	}
	if s.policy.SoftReinitAfter < 1 {
		s.policy.SoftReinitAfter = 1
	}
	if len(s.policy.TransientErrnos) == 0 {
		s.policy.TransientErrnos = DefaultTransientErrnos
	}

	return &Client[H]{
		name:     name,
		binding:  b,
		lock:     l,
		policy:   s.policy,
		resetter: s.resetter,
		progress: s.progress,
		observer: s.observer,
		log:      s.log.With("device", name),
		throttle: s.throttle,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Name returns the device name used in logs and metrics.
func (c *Client[H]) Name() string { return c.name }

// Perform runs fn against the device under the bus lock and the per-op
// deadline, retrying transient faults with escalating recovery.
//
// It returns nil on success, ErrUnavailable when the device is (or has just
// become) disabled, a buslock timeout when other processes kept the bus busy
// for the whole budget, and any unclassified error from fn unchanged.
func (c *Client[H]) Perform(ctx context.Context, fn func(ctx context.Context, h H) error) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.progress.Touch()
	defer c.progress.Touch()

	if c.Disabled() {
		if !c.ProbeAllowed() {
			c.observe("unavailable")
			return ErrUnavailable
		}
		return c.probe(ctx, fn)
	}

	delay := c.policy.BackoffBase
	var lockErr error

	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}

		err := c.attempt(ctx, fn)
		c.progress.Touch()

		cl := classify(err, c.policy.TransientErrnos)
		c.observe(cl.String())

		switch cl {
		case classOK:
			c.succeed()
			return nil

		case classLockBusy:
			lockErr = err
			c.throttle.Warn(c.log, "lock_busy", "bus lock busy", "attempt", attempt, "error", err)

		case classTransient:
			lockErr = nil
			n := c.fail(err)
			c.throttle.Warn(c.log, "transient", "bus transaction failed",
				"attempt", attempt, "failures", n, "error", err)
			c.escalate(ctx, n)

		case classCanceled:
			return err

		default:
			c.setLastError(err)
			return err
		}
	}

	if lockErr != nil {
		return lockErr
	}
	c.disable()
	return ErrUnavailable
}

// Call runs fn through c.Perform and returns its value.
func Call[H, T any](ctx context.Context, c *Client[H], fn func(ctx context.Context, h H) (T, error)) (T, error) {
	var (
		mu  sync.Mutex
		out T
	)
	err := c.Perform(ctx, func(ctx context.Context, h H) error {
		v, err := fn(ctx, h)
		if err != nil {
			return err
		}
		// a value produced after the deadline belongs to an abandoned attempt
		if err := ctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		out = v
		mu.Unlock()
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	mu.Lock()
	defer mu.Unlock()
	return out, nil
}

// Disabled reports whether the device is in its post-failure cooldown.
func (c *Client[H]) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

// ProbeAllowed reports whether a Perform call would reach the bus: always
// while enabled, and once the cooldown has elapsed while disabled.
func (c *Client[H]) ProbeAllowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disabled || !c.now().Before(c.disabledUntil)
}

// Stats returns a snapshot of the protocol state.
func (c *Client[H]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Failures = c.failures
	s.Disabled = c.disabled
	s.DisabledUntil = c.disabledUntil
	return s
}

// Close quiesces the device: the live handle is torn down, best effort.
func (c *Client[H]) Close() {
	c.op.Lock()
	defer c.op.Unlock()
	c.teardown().report(c.log)
}

func (c *Client[H]) attempt(ctx context.Context, fn func(ctx context.Context, h H) error) error {
	if !c.isLive() {
		if err := c.reinit(ctx, false); err != nil {
			return err
		}
	}
	return c.transact(ctx, fn)
}

func (c *Client[H]) transact(ctx context.Context, fn func(ctx context.Context, h H) error) error {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()

	return c.lock.WithLock(ctx, c.policy.LockTimeout, func() error {
		return deadline.Do(ctx, c.policy.OpTimeout, func(ctx context.Context) error {
			return fn(ctx, h)
		})
	})
}

// probe is the single attempt allowed once a disabled device's cooldown
// has elapsed.
func (c *Client[H]) probe(ctx context.Context, fn func(ctx context.Context, h H) error) error {
	c.mu.Lock()
	c.stats.Probes++
	failures := c.failures
	c.mu.Unlock()

	// a bus that stayed wedged through the cooldown gets the hard path again
	hard := c.policy.HardResetAfter > 0 && failures >= c.policy.HardResetAfter
	err := c.reinit(ctx, hard)
	if err == nil {
		err = c.transact(ctx, fn)
	}
	c.progress.Touch()

	cl := classify(err, c.policy.TransientErrnos)
	c.observe("probe_" + cl.String())

	switch cl {
	case classOK:
		c.log.Info("device recovered")
		c.succeed()
		return nil
	case classCanceled:
		return err
	case classTransient:
		c.fail(err)
		c.disable()
		return ErrUnavailable
	case classLockBusy:
		c.disable()
		return ErrUnavailable
	default:
		c.setLastError(err)
		c.disable()
		return err
	}
}

func (c *Client[H]) succeed() {
	c.mu.Lock()
	wasDisabled := c.disabled
	c.failures = 0
	c.disabled = false
	c.disabledUntil = time.Time{}
	c.stats.LastError = nil
	c.mu.Unlock()

	if wasDisabled && c.observer != nil {
		c.observer.Disabled(c.name, false)
	}
}

func (c *Client[H]) fail(err error) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.stats.LastError = err
	return c.failures
}

func (c *Client[H]) setLastError(err error) {
	c.mu.Lock()
	c.stats.LastError = err
	c.mu.Unlock()
}

func (c *Client[H]) disable() {
	c.mu.Lock()
	c.disabled = true
	c.disabledUntil = c.now().Add(c.policy.DisableCooldown)
	until := c.disabledUntil
	failures := c.failures
	c.mu.Unlock()

	c.throttle.Error(c.log, "disabled", "device disabled after repeated failures",
		"failures", failures, "until", until.Format(time.TimeOnly))
	if c.observer != nil {
		c.observer.Disabled(c.name, true)
	}
}

func (c *Client[H]) isLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *Client[H]) observe(result string) {
	if c.observer != nil {
		c.observer.Transaction(c.name, result)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
