// internal/recovery/strategy.go
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"
)

// DefaultSettle is the pause after a rebind before the bus is used again.
const DefaultSettle = 300 * time.Millisecond

// Unsticker releases a slave that holds SDA low.
type Unsticker interface {
	Unstick(ctx context.Context) error
}

// Rebinder recreates the kernel's bus adapter.
type Rebinder interface {
	Rebind(ctx context.Context) error
}

// Strategy is the hard reset: electrical unstick, then driver rebind, then
// a settle pause. Module unload is never used; on some SoCs it renumbers
// the bus nodes.
type Strategy struct {
	Unsticker Unsticker
	Rebinder  Rebinder
	Settle    time.Duration
	Euid      func() int
	Logger    *slog.Logger
}

// Privileged reports whether the process may touch pins and sysfs.
func (s *Strategy) Privileged() bool {
	euid := os.Geteuid
	if s.Euid != nil {
		euid = s.Euid
	}
	return euid() == 0
}

// HardReset runs every configured step. An unstick failure is only logged;
// the rebind result is returned.
func (s *Strategy) HardReset(ctx context.Context) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}

	if s.Unsticker != nil {
		if err := s.Unsticker.Unstick(ctx); err != nil {
			log.Warn("bus unstick failed", "error", err)
		}
	}

	var rebindErr error
	if s.Rebinder != nil {
		rebindErr = s.Rebinder.Rebind(ctx)
		if errors.Is(rebindErr, ErrNoDriver) {
			log.Debug("no rebindable bus driver", "error", rebindErr)
		}
	}

	settle := s.Settle
	if settle == 0 {
		settle = DefaultSettle
	}
	t := time.NewTimer(settle)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return rebindErr
}
