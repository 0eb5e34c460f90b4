// internal/config/load.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file over Default(), then applies the environment.
// A missing file is not an error. envFile, if set and present, is loaded
// into the process environment first without overriding variables that
// are already set, so the process environment wins.
//
// The result is validated and normalized.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: env file %s: %w", envFile, err)
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	Normalize(&cfg)
	return &cfg, nil
}

// ApplyEnv overlays the documented environment knobs.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	// bits bounds the accepted range so a cast never truncates
	num := func(key string, bits int, set func(int64)) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.ParseInt(v, 0, bits)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
			return
		}
		set(n)
	}
	// seconds, fractional allowed
	secs := func(key string, set func(ms int)) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
			return
		}
		set(int(f * 1000))
	}

	secs("I2C_OP_TIMEOUT_SEC", func(ms int) {
		cfg.INA219.Policy.OpTimeoutMs = ms
		cfg.OLED.Policy.OpTimeoutMs = ms
	})
	secs("WATCHDOG_TIMEOUT_SEC", func(ms int) { cfg.Watchdog.TimeoutMs = ms })
	secs("I2C_INIT_RETRY_SEC", func(ms int) { cfg.INA219.InitRetryMs = ms })
	secs("PUBLISH_INTERVAL_SEC", func(ms int) { cfg.INA219.IntervalMs = ms })

	num("I2C_FREQ_HZ", 64, func(n int64) { cfg.Bus.FrequencyHz = n })
	num("OLED_I2C_FREQ_HZ", 64, func(n int64) { cfg.OLED.FrequencyHz = n })
	num("I2C_BUS", 32, func(n int64) { cfg.Bus.Number = int(n) })
	num("I2C_ADDRESS", 8, func(n int64) { cfg.INA219.Address = uint16(n) })
	str("I2C_LOCK_PATH", &cfg.Bus.LockPath)

	str("MQTT_HOST", &cfg.MQTT.Host)
	num("MQTT_PORT", 32, func(n int64) { cfg.MQTT.Port = int(n) })
	str("MQTT_USER", &cfg.MQTT.User)
	str("MQTT_PASSWORD", &cfg.MQTT.Password)
	str("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	str("MQTT_BASE_TOPIC", &cfg.MQTT.BaseTopic)
	str("MQTT_DISCOVERY_PREFIX", &cfg.MQTT.DiscoveryPrefix)
	str("MQTT_DEVICE_ID", &cfg.MQTT.DeviceID)
	str("MQTT_DEVICE_NAME", &cfg.MQTT.DeviceName)

	return errors.Join(errs...)
}
