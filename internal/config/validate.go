// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/pilab/busguard/internal/status"
)

// measurementRegs is the width of the measurement block: mV, mA, mW hi, mW lo.
const measurementRegs = 4

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	if cfg.Bus.Number < 0 {
		return fmt.Errorf("bus: number must be >= 0, got %d", cfg.Bus.Number)
	}
	if cfg.Bus.LockPath == "" {
		return fmt.Errorf("bus: lock_path is required")
	}
	if cfg.Bus.FrequencyHz <= 0 || cfg.OLED.FrequencyHz < 0 {
		return fmt.Errorf("bus: frequency_hz must be positive")
	}
	if cfg.Watchdog.TimeoutMs < 0 {
		return fmt.Errorf("watchdog: timeout_ms must be >= 0")
	}

	switch cfg.Recovery.Unstick {
	case "command", "gpio", "none", "":
	default:
		return fmt.Errorf("recovery: unknown unstick method %q", cfg.Recovery.Unstick)
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	if a := cfg.INA219.Address; a != 0 && a > 0x7F {
		return fmt.Errorf("ina219: address 0x%X is not a 7-bit address", a)
	}
	if cfg.INA219.MaxCurrentA <= 0 || cfg.INA219.ShuntOhms <= 0 {
		return fmt.Errorf("ina219: max_current_a and shunt_ohms must be positive")
	}
	if cfg.INA219.IntervalMs <= 0 || cfg.INA219.InitRetryMs <= 0 {
		return fmt.Errorf("ina219: interval_ms and init_retry_ms must be positive")
	}
	if err := cfg.INA219.Policy.Policy().Validate(); err != nil {
		return fmt.Errorf("ina219: policy: %w", err)
	}

	if cfg.OLED.Width <= 0 || cfg.OLED.Height <= 0 || cfg.OLED.Height%8 != 0 {
		return fmt.Errorf("oled: invalid geometry %dx%d", cfg.OLED.Width, cfg.OLED.Height)
	}
	if err := cfg.OLED.Policy.Policy().Validate(); err != nil {
		return fmt.Errorf("oled: policy: %w", err)
	}

	// ------------------------------------------------------------
	// MQTT
	// ------------------------------------------------------------

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Port <= 0 || cfg.MQTT.Port > 65535 {
			return fmt.Errorf("mqtt: port %d out of range", cfg.MQTT.Port)
		}
		if cfg.MQTT.BaseTopic == "" {
			return fmt.Errorf("mqtt: base_topic is required")
		}
	}

	// ------------------------------------------------------------
	// MODBUS EXPORT (OPT-IN)
	// ------------------------------------------------------------

	return validateExport(cfg.Export)
}

func validateExport(e ExportConfig) error {
	type span struct {
		start uint32
		end   uint32
		what  string
	}

	// device_name sanity (ASCII only)
	for i := 0; i < len(e.DeviceName); i++ {
		if e.DeviceName[i] > 0x7F {
			return fmt.Errorf("export: device_name must contain ASCII characters only")
		}
	}

	if e.Endpoint == "" {
		if e.StatusSlot != nil || e.MeasurementAddress != nil {
			return fmt.Errorf("export: status_slot or measurement_address set but no endpoint")
		}
		return nil
	}

	var spans []span
	if e.StatusSlot != nil {
		start := uint32(*e.StatusSlot) * status.SlotsPerDevice
		spans = append(spans, span{start, start + status.SlotsPerDevice - 1, "status block"})
	}
	if e.MeasurementAddress != nil {
		start := uint32(*e.MeasurementAddress)
		spans = append(spans, span{start, start + measurementRegs - 1, "measurements"})
	}

	for _, s := range spans {
		if s.end > 0xFFFF {
			return fmt.Errorf("export: %s range %d-%d exceeds the register space", s.what, s.start, s.end)
		}
	}

	// overlap check (inclusive)
	if len(spans) == 2 {
		a, b := spans[0], spans[1]
		if !(a.end < b.start || a.start > b.end) {
			return fmt.Errorf(
				"export: register overlap: %s range=%d-%d overlaps with %s range=%d-%d",
				a.what, a.start, a.end,
				b.what, b.start, b.end,
			)
		}
	}

	return nil
}
