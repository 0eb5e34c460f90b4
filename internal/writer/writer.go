// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"math"

	"github.com/pilab/busguard/internal/device/ina219"
	"github.com/pilab/busguard/internal/poller"
)

// endpointClient is the exact contract the writers use.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// ---- MEASUREMENT REGISTERS ----

// Register offsets inside the measurement block.
const (
	RegMillivolts = 0
	RegMilliamps  = 1
	RegPowerHi    = 2
	RegPowerLo    = 3

	MeasurementRegs = 4
)

type measurementWriter struct {
	plan Plan
	cli  endpointClient
}

// New builds the measurement writer. A plan without a measurement part
// yields a writer that accepts and drops every result.
func New(plan Plan, cli endpointClient) Writer {
	return &measurementWriter{plan: plan, cli: cli}
}

// Write delivers one successful measurement. Failed cycles leave the last
// good values in place; the status block carries the failure.
func (w *measurementWriter) Write(res poller.Result) error {
	if w.plan.Measurement == nil || res.Err != nil {
		return nil
	}
	if w.cli == nil {
		return errors.New("writer: missing client")
	}

	addr := w.plan.Measurement.Address
	if err := w.cli.WriteRegisters(w.plan.UnitID, addr, EncodeMeasurement(res.Measurement)); err != nil {
		return fmt.Errorf("writer: ep=%s unit=%d addr=%d err=%w", w.plan.Endpoint, w.plan.UnitID, addr, err)
	}
	return nil
}

// EncodeMeasurement packs a measurement as mV, mA and mW (32 bit, high
// word first). Values are rounded and clamped to the register range.
func EncodeMeasurement(m ina219.Measurement) []uint16 {
	regs := make([]uint16, MeasurementRegs)
	regs[RegMillivolts] = uint16(clamp(m.Voltage*1e3, math.MaxUint16))
	regs[RegMilliamps] = uint16(clamp(m.Current*1e3, math.MaxUint16))

	mw := uint32(clamp(m.Power*1e3, math.MaxUint32))
	regs[RegPowerHi] = uint16(mw >> 16)
	regs[RegPowerLo] = uint16(mw)
	return regs
}

func clamp(v, hi float64) float64 {
	v = math.Round(v)
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > hi:
		return hi
	}
	return v
}
