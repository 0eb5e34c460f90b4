// internal/daemon/daemon.go
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pilab/busguard/internal/buslock"
	"github.com/pilab/busguard/internal/config"
	"github.com/pilab/busguard/internal/obs"
	"github.com/pilab/busguard/internal/recovery"
	"github.com/pilab/busguard/internal/watchdog"
)

// Env is the process-wide plumbing every bus daemon shares: one logger,
// one progress clock, one bus lock and one hard reset strategy.
type Env struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *obs.Metrics
	Throttle *obs.Throttle
	Progress *watchdog.Progress
	Lock     *buslock.Lock
	Reset    *recovery.Strategy
}

// New builds the Env from an already loaded config. Logs go to w.
func New(cfg *config.Config, w io.Writer) (*Env, error) {
	log, err := obs.NewLogger(w, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	return &Env{
		Config:   cfg,
		Logger:   log,
		Metrics:  obs.NewMetrics(),
		Throttle: obs.NewThrottle(obs.DefaultThrottleInterval),
		Progress: watchdog.NewProgress(),
		Lock:     buslock.New(cfg.Bus.LockPath),
		Reset:    recovery.Build(cfg.Recovery, log),
	}, nil
}

// Locker wraps the bus lock so waits show up per device in the metrics.
func (e *Env) Locker(device string) obs.TimedLocker {
	return obs.TimedLocker{Locker: e.Lock, Device: device, Metrics: e.Metrics}
}

// Start launches the watchdog and the metrics endpoint. Both stop with ctx.
func (e *Env) Start(ctx context.Context) {
	wd := &watchdog.Watchdog{
		Progress: e.Progress,
		Ceiling:  config.Duration(e.Config.Watchdog.TimeoutMs),
		Logger:   e.Logger,
	}
	go wd.Run(ctx)

	if addr := e.Config.Metrics.Listen; addr != "" {
		go func() {
			if err := e.Metrics.Serve(ctx, addr, e.Logger); err != nil {
				e.Logger.Error("metrics endpoint failed", "addr", addr, "error", err)
			}
		}()
	}
}

// Close releases the lock file descriptor.
func (e *Env) Close() {
	if err := e.Lock.Close(); err != nil {
		e.Logger.Debug("lock close failed", "error", err)
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// LoadConfig loads the config and re-validates it after apply has laid
// command-line overrides on top.
func LoadConfig(path, envFile string, apply func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, err
	}
	if apply != nil {
		apply(cfg)
		if err := config.Validate(cfg); err != nil {
			return nil, fmt.Errorf("config: after flags: %w", err)
		}
		config.Normalize(cfg)
	}
	return cfg, nil
}
