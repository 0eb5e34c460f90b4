// cmd/ina219-monitor/export.go
package main

import (
	"log/slog"

	"github.com/pilab/busguard/internal/config"
	"github.com/pilab/busguard/internal/obs"
	"github.com/pilab/busguard/internal/poller"
	"github.com/pilab/busguard/internal/status"
	"github.com/pilab/busguard/internal/writer"
	wmodbus "github.com/pilab/busguard/internal/writer/modbus"
)

// exporter mirrors readings and device status into the Modbus memory
// server. With export disabled every method is a no-op.
type exporter struct {
	data     writer.Writer
	status   writer.StatusWriter
	tracker  *status.Tracker
	cli      *wmodbus.EndpointClient
	log      *slog.Logger
	throttle *obs.Throttle
}

func newExporter(e config.ExportConfig, log *slog.Logger) (*exporter, error) {
	plan, ok := writer.BuildPlan(e)
	if !ok {
		return &exporter{}, nil
	}
	cli, err := writer.BuildEndpointClient(plan, e)
	if err != nil {
		return nil, err
	}

	x := &exporter{
		data:     writer.New(plan, cli),
		tracker:  status.NewTracker(),
		cli:      cli,
		log:      log.With("endpoint", plan.Endpoint),
		throttle: obs.NewThrottle(obs.DefaultThrottleInterval),
	}
	if sw, enabled := writer.NewDeviceStatusWriter(plan, cli); enabled {
		x.status = sw
		// Full block write on start (identity re-assert).
		x.writeStatus(x.tracker.Snapshot())
	}
	log.Info("modbus export enabled", "endpoint", plan.Endpoint,
		"status", plan.Status != nil, "measurements", plan.Measurement != nil)
	return x, nil
}

// Observe delivers one poll result and the status it implies.
func (x *exporter) Observe(res poller.Result) {
	if x.cli == nil {
		return
	}
	if err := x.data.Write(res); err != nil {
		x.throttle.Warn(x.log, "export", "measurement export failed", "error", err)
	}
	x.writeStatus(x.tracker.Observe(res.Err, res.Stats))
}

// Tick advances seconds-in-error; run at 1 Hz.
func (x *exporter) Tick() {
	if x.cli == nil {
		return
	}
	x.writeStatus(x.tracker.Tick())
}

func (x *exporter) writeStatus(s status.Snapshot) {
	if x.status == nil {
		return
	}
	if err := x.status.WriteStatus(s); err != nil {
		x.throttle.Warn(x.log, "status", "status export failed", "error", err)
	}
}

func (x *exporter) Close() {
	if x.cli == nil {
		return
	}
	if err := x.cli.Close(); err != nil {
		x.log.Debug("export close failed", "error", err)
	}
}
