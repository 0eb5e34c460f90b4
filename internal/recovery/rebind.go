// internal/recovery/rebind.go
package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultDriverDir = "/sys/bus/platform/drivers/i2c_designware"
	DefaultDevice    = "1f00074000.i2c"
	DefaultRebindGap = 50 * time.Millisecond
)

// ErrNoDriver means the driver's bind/unbind controls do not exist here.
var ErrNoDriver = errors.New("recovery: bus driver controls not found")

// SysfsRebinder unbinds and rebinds one platform device from its driver.
type SysfsRebinder struct {
	DriverDir string
	Device    string
	Gap       time.Duration
}

func (r SysfsRebinder) Rebind(ctx context.Context) error {
	dir := r.DriverDir
	if dir == "" {
		dir = DefaultDriverDir
	}
	dev := r.Device
	if dev == "" {
		dev = DefaultDevice
	}
	gap := r.Gap
	if gap == 0 {
		gap = DefaultRebindGap
	}

	unbind := filepath.Join(dir, "unbind")
	bind := filepath.Join(dir, "bind")
	for _, p := range []string{unbind, bind} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%w: %s", ErrNoDriver, p)
		}
	}

	// unbind fails when the device is already detached; bind still runs.
	unbindErr := sysfsWrite(unbind, dev)

	t := time.NewTimer(gap)
	select {
	case <-t.C:
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}

	if err := sysfsWrite(bind, dev); err != nil {
		return errors.Join(unbindErr, err)
	}
	return nil
}

func sysfsWrite(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
