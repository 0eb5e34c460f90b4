// internal/writer/builder.go
package writer

import (
	cfg "github.com/pilab/busguard/internal/config"
	wmodbus "github.com/pilab/busguard/internal/writer/modbus"
)

// BuildPlan converts the export config into a writer Plan.
// Assumes config has already passed validation and normalization.
// An empty endpoint disables export: ok is false.
func BuildPlan(e cfg.ExportConfig) (plan Plan, ok bool) {
	if e.Endpoint == "" {
		return Plan{}, false
	}

	plan = Plan{
		Endpoint: e.Endpoint,
		UnitID:   e.UnitID,
	}
	if e.StatusSlot != nil {
		plan.Status = &StatusPlan{
			BaseSlot:   *e.StatusSlot,
			DeviceName: e.DeviceName,
		}
	}
	if e.MeasurementAddress != nil {
		plan.Measurement = &MeasurementPlan{Address: *e.MeasurementAddress}
	}
	return plan, true
}

// BuildEndpointClient creates the TCP client for the plan's endpoint.
// The connection is opened on first write.
func BuildEndpointClient(plan Plan, e cfg.ExportConfig) (*wmodbus.EndpointClient, error) {
	return wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint: plan.Endpoint,
		Timeout:  cfg.Duration(e.TimeoutMs),
	})
}
