// internal/recovery/builder.go
package recovery

import (
	"log/slog"

	cfg "github.com/pilab/busguard/internal/config"
)

// Build assembles the hard reset strategy from config.
// Assumes config has already passed validation.
func Build(c cfg.RecoveryConfig, log *slog.Logger) *Strategy {
	s := &Strategy{
		Rebinder: SysfsRebinder{
			DriverDir: c.DriverDir,
			Device:    c.DriverDevice,
		},
		Settle: cfg.Duration(c.SettleMs),
		Logger: log,
	}

	switch c.Unstick {
	case "gpio":
		s.Unsticker = GPIOUnsticker{Chip: c.Chip, SDA: c.SDA, SCL: c.SCL}
	case "none":
	default:
		s.Unsticker = CommandUnsticker{SDA: c.SDA, SCL: c.SCL}
	}
	return s
}
