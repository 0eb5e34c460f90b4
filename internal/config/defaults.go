// internal/config/defaults.go
package config

import (
	"os"

	"github.com/pilab/busguard/internal/sysinfo"
)

// Default returns the configuration used when the file is absent or silent
// on a field. The two daemons get different retry policies: the display can
// afford a hard reset early, the sensor logger only reopens its bus.
func Default() Config {
	host, _ := os.Hostname()
	return Config{
		Log: LogConfig{Format: "text", Level: "info"},
		Bus: BusConfig{
			Number:      1,
			DevDir:      "/dev",
			FrequencyHz: 50000,
			LockPath:    "/run/lock/i2c-1.lock",
		},
		Watchdog: WatchdogConfig{TimeoutMs: 25000},
		Recovery: RecoveryConfig{
			Unstick:      "command",
			Chip:         "gpiochip0",
			SDA:          2,
			SCL:          3,
			DriverDir:    "/sys/bus/platform/drivers/i2c_designware",
			DriverDevice: "1f00074000.i2c",
			SettleMs:     300,
		},
		INA219: INA219Config{
			MaxCurrentA: 4.0,
			ShuntOhms:   1.0 / (1.0/0.1 + 6.0/0.11),
			IntervalMs:  1000,
			InitRetryMs: 5000,
			Policy: PolicyConfig{
				Attempts:            3,
				BackoffMs:           50,
				SoftReinitAfter:     3,
				HardResetAfter:      0,
				ReinitMinIntervalMs: 5000,
				HardResetCooldownMs: 10000,
				DisableCooldownMs:   5000, // a probe reopens, so it waits out the reopen interval
				LockTimeoutMs:       1000,
				OpenLockTimeoutMs:   3000,
				OpTimeoutMs:         1500,
				SettleMs:            50,
			},
		},
		OLED: OLEDConfig{
			Width:  128,
			Height: 32,
			Title:  "ROCKPi SATA HAT",
			Slider: SliderConfig{Auto: true, TimeMs: 10000},
			Mounts: []sysinfo.Mount{{Label: "Root", Path: "/"}},
			Policy: PolicyConfig{
				Attempts:            3,
				BackoffMs:           50,
				SoftReinitAfter:     1,
				HardResetAfter:      2,
				HardResetCooldownMs: 10000,
				DisableCooldownMs:   60000,
				LockTimeoutMs:       1000,
				OpTimeoutMs:         1500,
				SettleMs:            50,
			},
		},
		MQTT: MQTTConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            1883,
			ClientID:        "nas-ina219-" + host,
			BaseTopic:       "nas/ina219",
			DiscoveryPrefix: "homeassistant",
			DeviceID:        "nas_ina219",
			DeviceName:      "NAS INA219",
		},
		Export: ExportConfig{TimeoutMs: 1000},
	}
}
