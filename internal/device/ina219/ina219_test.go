// internal/device/ina219/ina219_test.go
package ina219

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// fakeBus emulates register-addressed chips. Unknown addresses NACK.
type fakeBus struct {
	chips  map[uint16]map[byte]uint16
	fail   error
	closed int
}

func newFakeBus(addr uint16) *fakeBus {
	return &fakeBus{chips: map[uint16]map[byte]uint16{addr: {}}}
}

func (b *fakeBus) String() string                  { return "fake" }
func (b *fakeBus) SetSpeed(physic.Frequency) error { return nil }
func (b *fakeBus) Close() error                    { b.closed++; return nil }

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if b.fail != nil {
		return b.fail
	}
	regs, ok := b.chips[addr]
	if !ok {
		return syscall.Errno(121)
	}
	switch {
	case len(w) == 3 && len(r) == 0:
		regs[w[0]] = uint16(w[1])<<8 | uint16(w[2])
	case len(w) == 1 && len(r) == 2:
		v := regs[w[0]]
		r[0], r[1] = byte(v>>8), byte(v)
	default:
		return errors.New("unexpected transfer")
	}
	return nil
}

var _ i2c.BusCloser = (*fakeBus)(nil)

func defaultCal(t *testing.T) Calibration {
	t.Helper()
	c, err := NewCalibration(DefaultMaxCurrent, DefaultShuntOhms)
	require.NoError(t, err)
	return c
}

func TestCalibrationDefaults(t *testing.T) {
	c := defaultCal(t)
	assert.Equal(t, uint16(21657), c.Value)
	assert.InDelta(t, 1.2207e-4, c.CurrentLSB, 1e-8)
	assert.InDelta(t, 20*c.CurrentLSB, c.PowerLSB, 1e-12)

	_, err := NewCalibration(0, 0.1)
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	c := defaultCal(t)
	m := c.Convert(Raw{
		Shunt:   500,       // 5 mV
		Bus:     3000 << 3, // 12 V
		Current: -8192,     // reversed polarity
		Power:   4096,
	})
	assert.InDelta(t, 0.005, m.ShuntVoltage, 1e-9)
	assert.InDelta(t, 12.0, m.BusVoltage, 1e-9)
	assert.InDelta(t, 12.005, m.Voltage, 1e-9)
	assert.InDelta(t, 8192*c.CurrentLSB, m.Current, 1e-9)
	assert.InDelta(t, 4096*c.PowerLSB, m.Power, 1e-9)
}

func TestConfigureAndRead(t *testing.T) {
	b := newFakeBus(0x40)
	regs := b.chips[0x40]
	regs[RegShuntVoltage] = 0xFF38 // -200
	regs[RegBusVoltage] = 1250 << 3
	regs[RegCurrent] = 1000
	regs[RegPower] = 50

	s := NewSensor(b, 0x40, defaultCal(t))
	require.NoError(t, s.Configure())
	assert.Equal(t, uint16(Config32V80mV), regs[RegConfig])
	assert.Equal(t, uint16(21657), regs[RegCalibration])

	r, err := s.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, Raw{Shunt: -200, Bus: 1250 << 3, Current: 1000, Power: 50}, r)

	m, err := s.Read()
	require.NoError(t, err)
	assert.InDelta(t, 5.0-0.002, m.Voltage, 1e-9)
}

func TestReadPropagatesErrno(t *testing.T) {
	b := newFakeBus(0x40)
	b.fail = syscall.ETIMEDOUT
	_, err := NewSensor(b, 0x40, defaultCal(t)).ReadRaw()
	assert.ErrorIs(t, err, syscall.ETIMEDOUT)
}

func TestScan(t *testing.T) {
	addr, err := Scan(newFakeBus(0x45), ScanFirst, ScanLast)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x45), addr)

	_, err = Scan(newFakeBus(0x70), ScanFirst, ScanLast)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBindingScansAndConfigures(t *testing.T) {
	bus := newFakeBus(0x44)
	b := &Binding{
		Calibration: defaultCal(t),
		open:        func() (i2c.BusCloser, int, error) { return bus, 1, nil },
	}

	h, err := b.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(0x44), h.Sensor.Addr())
	assert.Equal(t, uint16(Config32V80mV), bus.chips[0x44][RegConfig])

	require.NoError(t, b.Close(h))
	assert.Equal(t, 1, bus.closed)
}

func TestBindingClosesBusWhenSensorMissing(t *testing.T) {
	bus := newFakeBus(0x44)
	b := &Binding{
		Address:     0x40,
		Calibration: defaultCal(t),
		open:        func() (i2c.BusCloser, int, error) { return bus, 1, nil },
	}

	_, err := b.Open(context.Background())
	assert.ErrorIs(t, err, syscall.Errno(121))
	assert.Equal(t, 1, bus.closed)
}
