// internal/config/load_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Bus.Number)
	assert.Equal(t, int64(50000), cfg.OLED.FrequencyHz)
	assert.Equal(t, 5*time.Second, cfg.INA219.Policy.Policy().DisableCooldown)
	assert.Equal(t, 60*time.Second, cfg.OLED.Policy.Policy().DisableCooldown)
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bus:
  number: 3
oled:
  rotate: true
  slider:
    auto: false
    time_ms: 4000
  policy:
    hard_reset_after: 0
export:
  endpoint: 10.0.0.5:502
  status_slot: 2
  device_name: ups-ina219
`), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Bus.Number)
	assert.Equal(t, "/run/lock/i2c-1.lock", cfg.Bus.LockPath)
	assert.True(t, cfg.OLED.Rotate)
	assert.False(t, cfg.OLED.Slider.Auto)
	assert.Equal(t, 4000, cfg.OLED.Slider.TimeMs)
	assert.Equal(t, 0, cfg.OLED.Policy.HardResetAfter)
	// untouched policy fields keep their defaults
	assert.Equal(t, 1, cfg.OLED.Policy.SoftReinitAfter)
	require.NotNil(t, cfg.Export.StatusSlot)
	assert.Equal(t, uint16(2), *cfg.Export.StatusSlot)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("oled:\n  height: 30\n"), 0o644))

	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"I2C_OP_TIMEOUT_SEC":   "0.75",
		"WATCHDOG_TIMEOUT_SEC": "20",
		"I2C_ADDRESS":          "0x41",
		"OLED_I2C_FREQ_HZ":     "100000",
		"I2C_LOCK_PATH":        "/tmp/i2c.lock",
		"MQTT_PORT":            "8883",
		"MQTT_BASE_TOPIC":      "lab/ina",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, lookup))

	assert.Equal(t, 750*time.Millisecond, cfg.OLED.Policy.Policy().OpTimeout)
	assert.Equal(t, 750, cfg.INA219.Policy.OpTimeoutMs)
	assert.Equal(t, 20000, cfg.Watchdog.TimeoutMs)
	assert.Equal(t, uint16(0x41), cfg.INA219.Address)
	assert.Equal(t, int64(100000), cfg.OLED.FrequencyHz)
	assert.Equal(t, "/tmp/i2c.lock", cfg.Bus.LockPath)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.Equal(t, "lab/ina", cfg.MQTT.BaseTopic)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, func(k string) (string, bool) {
		if k == "I2C_BUS" {
			return "one", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestApplyEnvRejectsOversizedAddress(t *testing.T) {
	for _, v := range []string{"0x10040", "0x140", "256"} {
		cfg := Default()
		err := ApplyEnv(&cfg, func(k string) (string, bool) {
			if k == "I2C_ADDRESS" {
				return v, true
			}
			return "", false
		})
		assert.Error(t, err, v)
		assert.Equal(t, Default().INA219.Address, cfg.INA219.Address, v)
	}
}

func TestEnvAddressOutsideSevenBitsFailsValidation(t *testing.T) {
	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, func(k string) (string, bool) {
		if k == "I2C_ADDRESS" {
			return "-1", true
		}
		return "", false
	}))
	assert.Error(t, Validate(&cfg))
}

func TestLoadEnvFileDoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MQTT_DEVICE_NAME=from-file\nMQTT_DEVICE_ID=file_id\n"), 0o644))

	t.Setenv("MQTT_DEVICE_NAME", "from-process")
	// godotenv sets variables that were absent; clear them after the test
	t.Setenv("MQTT_DEVICE_ID", "")
	require.NoError(t, os.Unsetenv("MQTT_DEVICE_ID"))

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-process", cfg.MQTT.DeviceName)
	assert.Equal(t, "file_id", cfg.MQTT.DeviceID)
}
