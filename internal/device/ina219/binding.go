// internal/device/ina219/binding.go
package ina219

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"

	"github.com/pilab/busguard/internal/i2cbus"
)

// Handle is one open bus plus the configured sensor on it.
type Handle struct {
	bus    i2c.BusCloser
	Sensor *Sensor
	BusNum int
}

// Binding opens the bus, finds the sensor (unless Address is fixed) and
// configures it. It runs under the bus lock held by the client.
type Binding struct {
	Opener      i2cbus.Opener
	Address     uint16 // 0 scans ScanFirst..ScanLast
	Calibration Calibration
	Logger      *slog.Logger

	open func() (i2c.BusCloser, int, error)
	last uint16
	seen int
}

func (b *Binding) Open(ctx context.Context) (*Handle, error) {
	open := b.open
	if open == nil {
		open = b.Opener.Open
	}
	bus, n, err := open()
	if err != nil {
		return nil, err
	}

	addr := b.Address
	if addr == 0 {
		addr, err = Scan(bus, ScanFirst, ScanLast)
		if err != nil {
			bus.Close()
			return nil, err
		}
	}

	s := NewSensor(bus, addr, b.Calibration)
	if err := s.Configure(); err != nil {
		bus.Close()
		return nil, err
	}

	if b.Logger != nil && (addr != b.last || n != b.seen) {
		b.Logger.Info("INA219 detected", "address", fmt.Sprintf("0x%02X", addr), "bus", n)
	}
	b.last, b.seen = addr, n
	return &Handle{bus: bus, Sensor: s, BusNum: n}, nil
}

func (b *Binding) Close(h *Handle) error {
	if h == nil || h.bus == nil {
		return nil
	}
	return h.bus.Close()
}
