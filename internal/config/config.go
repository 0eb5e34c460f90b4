// internal/config/config.go
package config

import (
	"time"

	"github.com/pilab/busguard/internal/busclient"
	"github.com/pilab/busguard/internal/sysinfo"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Bus      BusConfig      `yaml:"bus"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Recovery RecoveryConfig `yaml:"recovery"`
	INA219   INA219Config   `yaml:"ina219"`
	OLED     OLEDConfig     `yaml:"oled"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Export   ExportConfig   `yaml:"export"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ---- LOG ----

type LogConfig struct {
	Format string `yaml:"format"` // text | json
	Level  string `yaml:"level"`
}

// ---- BUS ----

type BusConfig struct {
	Number      int    `yaml:"number"`
	DevDir      string `yaml:"dev_dir"`
	FrequencyHz int64  `yaml:"frequency_hz"`
	LockPath    string `yaml:"lock_path"`
}

// ---- WATCHDOG ----

type WatchdogConfig struct {
	TimeoutMs int `yaml:"timeout_ms"` // 0 disables
}

// ---- HARD RESET ----

type RecoveryConfig struct {
	// Unstick is "command" (pinctrl / raspi-gpio), "gpio" (character
	// device) or "none".
	Unstick      string `yaml:"unstick"`
	Chip         string `yaml:"chip"`
	SDA          int    `yaml:"sda"`
	SCL          int    `yaml:"scl"`
	DriverDir    string `yaml:"driver_dir"`
	DriverDevice string `yaml:"driver_device"`
	SettleMs     int    `yaml:"settle_ms"`
}

// ---- RETRY POLICY ----

type PolicyConfig struct {
	Attempts            int `yaml:"attempts"`
	BackoffMs           int `yaml:"backoff_ms"`
	SoftReinitAfter     int `yaml:"soft_reinit_after"`
	HardResetAfter      int `yaml:"hard_reset_after"`
	ReinitMinIntervalMs int `yaml:"reinit_min_interval_ms"`
	HardResetCooldownMs int `yaml:"hard_reset_cooldown_ms"`
	DisableCooldownMs   int `yaml:"disable_cooldown_ms"`
	LockTimeoutMs       int `yaml:"lock_timeout_ms"`
	OpenLockTimeoutMs   int `yaml:"open_lock_timeout_ms"`
	OpTimeoutMs         int `yaml:"op_timeout_ms"`
	SettleMs            int `yaml:"settle_ms"`
}

// Policy converts to the bus client's policy.
func (p PolicyConfig) Policy() busclient.Policy {
	out := busclient.DefaultPolicy()
	out.Attempts = p.Attempts
	out.BackoffBase = ms(p.BackoffMs)
	out.SoftReinitAfter = p.SoftReinitAfter
	out.HardResetAfter = p.HardResetAfter
	out.ReinitMinInterval = ms(p.ReinitMinIntervalMs)
	out.HardResetCooldown = ms(p.HardResetCooldownMs)
	out.DisableCooldown = ms(p.DisableCooldownMs)
	out.LockTimeout = ms(p.LockTimeoutMs)
	out.OpenLockTimeout = ms(p.OpenLockTimeoutMs)
	out.OpTimeout = ms(p.OpTimeoutMs)
	out.SettleDelay = ms(p.SettleMs)
	return out
}

// ---- INA219 ----

type INA219Config struct {
	Address     uint16       `yaml:"address"` // 0 scans 0x40-0x4F
	MaxCurrentA float64      `yaml:"max_current_a"`
	ShuntOhms   float64      `yaml:"shunt_ohms"`
	IntervalMs  int          `yaml:"interval_ms"`
	InitRetryMs int          `yaml:"init_retry_ms"`
	Policy      PolicyConfig `yaml:"policy"`
}

// ---- OLED ----

type OLEDConfig struct {
	Width       int             `yaml:"width"`
	Height      int             `yaml:"height"`
	FrequencyHz int64           `yaml:"frequency_hz"` // 0 uses bus.frequency_hz
	Title       string          `yaml:"title"`
	Rotate      bool            `yaml:"rotate"`
	Invert      bool            `yaml:"invert"`
	WhiteTest   bool            `yaml:"white_test"`
	Fahrenheit  bool            `yaml:"f_temp"`
	Slider      SliderConfig    `yaml:"slider"`
	Mounts      []sysinfo.Mount `yaml:"mounts"`
	Policy      PolicyConfig    `yaml:"policy"`
}

type SliderConfig struct {
	Auto   bool `yaml:"auto"`
	TimeMs int  `yaml:"time_ms"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	BaseTopic       string `yaml:"base_topic"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	DeviceID        string `yaml:"device_id"`
	DeviceName      string `yaml:"device_name"`
}

// ---- MODBUS EXPORT ----

// ExportConfig mirrors device state into a Modbus TCP memory server.
type ExportConfig struct {
	Endpoint  string `yaml:"endpoint"` // empty disables export
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`

	// Device status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot"`
	DeviceName string  `yaml:"device_name"`

	// Measurement registers (optional, opt-in)
	MeasurementAddress *uint16 `yaml:"measurement_address"`
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Duration converts a *_ms field.
func Duration(v int) time.Duration { return ms(v) }
