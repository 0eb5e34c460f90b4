// internal/config/normalize.go
package config

import "github.com/pilab/busguard/internal/status"

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// The display falls back to the shared bus clock.
	if cfg.OLED.FrequencyHz == 0 {
		cfg.OLED.FrequencyHz = cfg.Bus.FrequencyHz
	}

	if cfg.Recovery.Unstick == "" {
		cfg.Recovery.Unstick = "command"
	}

	if cfg.OLED.Slider.TimeMs <= 0 {
		cfg.OLED.Slider.TimeMs = 10000
	}

	// ------------------------------------------------------------
	// DEVICE STATUS BLOCK NORMALIZATION (OPT-IN)
	// ------------------------------------------------------------

	if cfg.Export.StatusSlot == nil {
		return
	}

	if cfg.Export.DeviceName == "" {
		cfg.Export.DeviceName = cfg.MQTT.DeviceName
	}

	// Normalize device_name:
	// - ASCII already validated
	// - Truncate to max 16 characters
	if len(cfg.Export.DeviceName) > status.DeviceNameMaxChars {
		cfg.Export.DeviceName = cfg.Export.DeviceName[:status.DeviceNameMaxChars]
	}
}
