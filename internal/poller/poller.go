// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pilab/busguard/internal/busclient"
	"github.com/pilab/busguard/internal/device/ina219"
	"github.com/pilab/busguard/internal/obs"
	"github.com/pilab/busguard/internal/watchdog"
)

// Device abstracts the sensor operations the poller needs. Every call goes
// through the fault-tolerant bus client.
type Device interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (ina219.Measurement, error)
	ProbeAllowed() bool
	Stats() busclient.Stats
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Device    string
	Interval  time.Duration
	InitRetry time.Duration
}

// Poller is a clock-driven reader. Retry and recovery live in the bus
// client; one cycle is one Perform.
type Poller struct {
	cfg      Config
	dev      Device
	progress *watchdog.Progress
	log      *slog.Logger
	throttle *obs.Throttle

	now func() time.Time
}

// New creates a poller with immutable config.
func New(cfg Config, dev Device, progress *watchdog.Progress, log *slog.Logger) (*Poller, error) {
	if cfg.Device == "" {
		return nil, errors.New("poller: device name required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.InitRetry <= 0 {
		return nil, errors.New("poller: init retry must be > 0")
	}
	if dev == nil {
		return nil, errors.New("poller: device required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		cfg:      cfg,
		dev:      dev,
		progress: progress,
		log:      log.With("device", cfg.Device),
		throttle: obs.NewThrottle(obs.DefaultThrottleInterval),
		now:      time.Now,
	}, nil
}

// WaitReady opens the device, retrying every InitRetry until it answers or
// ctx is done. Failures are logged at most once per throttle interval.
func (p *Poller) WaitReady(ctx context.Context) error {
	for {
		err := p.dev.Open(ctx)
		if err == nil {
			p.log.Info("sensor ready")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.throttle.Error(p.log, "init", "sensor init failed, retrying",
			"retry_in", p.cfg.InitRetry, "error", err)

		if err := watchdog.Sleep(ctx, p.progress, p.cfg.InitRetry); err != nil {
			return err
		}
	}
}

// PollOnce performs exactly one poll cycle. A disabled device whose
// cooldown has not elapsed is reported unavailable without a bus access.
func (p *Poller) PollOnce(ctx context.Context) Result {
	res := Result{
		Device: p.cfg.Device,
		At:     p.now(),
	}
	if !p.dev.ProbeAllowed() {
		res.Err = busclient.ErrUnavailable
		res.Stats = p.dev.Stats()
		return res
	}
	res.Measurement, res.Err = p.dev.Read(ctx)
	if res.Err != nil {
		res.Measurement = ina219.Measurement{}
	}
	res.Stats = p.dev.Stats()
	return res
}
