// internal/poller/builder.go
package poller

import (
	"context"
	"log/slog"

	"github.com/pilab/busguard/internal/busclient"
	"github.com/pilab/busguard/internal/config"
	"github.com/pilab/busguard/internal/device/ina219"
	"github.com/pilab/busguard/internal/watchdog"
)

// Sensor adapts a bus client bound to an INA219 to Device.
type Sensor struct {
	Client *busclient.Client[*ina219.Handle]
}

func (s Sensor) Open(ctx context.Context) error { return s.Client.Reinit(ctx, false) }
func (s Sensor) ProbeAllowed() bool             { return s.Client.ProbeAllowed() }
func (s Sensor) Stats() busclient.Stats         { return s.Client.Stats() }

func (s Sensor) Read(ctx context.Context) (ina219.Measurement, error) {
	return busclient.Call(ctx, s.Client, func(_ context.Context, h *ina219.Handle) (ina219.Measurement, error) {
		return h.Sensor.Read()
	})
}

// Build constructs a Poller for the configured sensor. The client owns the
// bus handle; closing it is the caller's job.
func Build(c config.INA219Config, client *busclient.Client[*ina219.Handle], progress *watchdog.Progress, log *slog.Logger) (*Poller, error) {
	return New(
		Config{
			Device:    client.Name(),
			Interval:  config.Duration(c.IntervalMs),
			InitRetry: config.Duration(c.InitRetryMs),
		},
		Sensor{Client: client},
		progress,
		log,
	)
}
