// internal/device/ina219/ina219.go
package ina219

import (
	"errors"
	"fmt"
	"math"

	"periph.io/x/conn/v3/i2c"
)

// Registers.
const (
	RegConfig       = 0x00
	RegShuntVoltage = 0x01
	RegBusVoltage   = 0x02
	RegPower        = 0x03
	RegCurrent      = 0x04
	RegCalibration  = 0x05
)

// Config32V80mV is 32 V bus range, 80 mV shunt range, 12-bit ADCs with
// 128 sample averaging, continuous shunt and bus conversion.
const Config32V80mV = 0x3BFF

const (
	ScanFirst = 0x40
	ScanLast  = 0x4F

	DefaultMaxCurrent = 4.0
)

// DefaultShuntOhms is one 0.1 Ω resistor in parallel with six 0.11 Ω ones.
var DefaultShuntOhms = 1.0 / (1.0/0.1 + 6.0/0.11)

// ErrNotFound means no address in the scan range answered.
var ErrNotFound = errors.New("ina219: no sensor found")

// Calibration derives the scale factors for a given full-scale current and
// shunt.
type Calibration struct {
	CurrentLSB float64 // A per bit
	PowerLSB   float64 // W per bit
	Value      uint16
}

func NewCalibration(maxCurrent, shuntOhms float64) (Calibration, error) {
	if maxCurrent <= 0 || shuntOhms <= 0 {
		return Calibration{}, fmt.Errorf("ina219: invalid calibration %gA/%gΩ", maxCurrent, shuntOhms)
	}
	lsb := maxCurrent / 32767.0
	v := math.Trunc(0.04096 / (lsb * shuntOhms))
	if v < 1 || v > math.MaxUint16 {
		return Calibration{}, fmt.Errorf("ina219: calibration %g out of range", v)
	}
	return Calibration{CurrentLSB: lsb, PowerLSB: 20 * lsb, Value: uint16(v)}, nil
}

// Raw holds the four measurement registers as read.
type Raw struct {
	Shunt   int16
	Bus     uint16
	Current int16
	Power   uint16
}

// Measurement is a converted sample.
type Measurement struct {
	ShuntVoltage float64 // V
	BusVoltage   float64 // V
	Voltage      float64 // V, bus plus shunt drop
	Current      float64 // A, always positive
	Power        float64 // W
}

// Convert scales raw registers. The current is reported as a magnitude so a
// sensor wired with reversed polarity still reads sensibly.
func (c Calibration) Convert(r Raw) Measurement {
	shunt := float64(r.Shunt) * 10e-6
	bus := float64(r.Bus>>3) * 4e-3
	return Measurement{
		ShuntVoltage: shunt,
		BusVoltage:   bus,
		Voltage:      bus + shunt,
		Current:      math.Abs(float64(r.Current) * c.CurrentLSB),
		Power:        float64(r.Power) * c.PowerLSB,
	}
}

// Sensor talks to one INA219. Every method is a bus transaction; the caller
// holds the bus lock.
type Sensor struct {
	dev *i2c.Dev
	cal Calibration
}

func NewSensor(b i2c.Bus, addr uint16, cal Calibration) *Sensor {
	return &Sensor{dev: &i2c.Dev{Bus: b, Addr: addr}, cal: cal}
}

func (s *Sensor) Addr() uint16 { return s.dev.Addr }

func (s *Sensor) Calibration() Calibration { return s.cal }

// Configure writes config and calibration, the sensor's baseline state.
func (s *Sensor) Configure() error {
	if err := writeRegister(s.dev, RegConfig, Config32V80mV); err != nil {
		return fmt.Errorf("ina219: write config: %w", err)
	}
	if err := writeRegister(s.dev, RegCalibration, s.cal.Value); err != nil {
		return fmt.Errorf("ina219: write calibration: %w", err)
	}
	return nil
}

func (s *Sensor) ReadRaw() (Raw, error) {
	var r Raw
	regs := []struct {
		reg byte
		dst func(uint16)
	}{
		{RegShuntVoltage, func(v uint16) { r.Shunt = int16(v) }},
		{RegBusVoltage, func(v uint16) { r.Bus = v }},
		{RegCurrent, func(v uint16) { r.Current = int16(v) }},
		{RegPower, func(v uint16) { r.Power = v }},
	}
	for _, x := range regs {
		v, err := readRegister(s.dev, x.reg)
		if err != nil {
			return Raw{}, fmt.Errorf("ina219: read reg 0x%02x: %w", x.reg, err)
		}
		x.dst(v)
	}
	return r, nil
}

func (s *Sensor) Read() (Measurement, error) {
	r, err := s.ReadRaw()
	if err != nil {
		return Measurement{}, err
	}
	return s.cal.Convert(r), nil
}

// Scan returns the first address in [first, last] whose config register
// can be read.
func Scan(b i2c.Bus, first, last uint16) (uint16, error) {
	for a := first; a <= last; a++ {
		if _, err := readRegister(&i2c.Dev{Bus: b, Addr: a}, RegConfig); err == nil {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w at 0x%02X-0x%02X", ErrNotFound, first, last)
}

// Registers are big-endian on the wire.
func readRegister(d *i2c.Dev, reg byte) (uint16, error) {
	var buf [2]byte
	if err := d.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func writeRegister(d *i2c.Dev, reg byte, v uint16) error {
	return d.Tx([]byte{reg, byte(v >> 8), byte(v)}, nil)
}
