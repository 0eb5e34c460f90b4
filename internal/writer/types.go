// internal/writer/types.go
package writer

import "github.com/pilab/busguard/internal/poller"

// StatusPlan places the device status block.
type StatusPlan struct {
	BaseSlot   uint16
	DeviceName string
}

// MeasurementPlan places the measurement registers.
type MeasurementPlan struct {
	Address uint16
}

// Plan is the fully-built export plan for one device. Nil parts are
// disabled.
type Plan struct {
	Endpoint    string
	UnitID      uint8
	Status      *StatusPlan
	Measurement *MeasurementPlan
}

// Writer writes poll snapshots into the memory server.
type Writer interface {
	Write(res poller.Result) error
}
