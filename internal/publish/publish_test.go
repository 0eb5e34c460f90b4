// internal/publish/publish_test.go
package publish

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilab/busguard/internal/config"
	"github.com/pilab/busguard/internal/device/ina219"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	retained bool
	payload  string
}

type fakeBroker struct {
	msgs         []published
	disconnected bool
}

func (f *fakeBroker) Connect() mqtt.Token { return doneToken{} }
func (f *fakeBroker) Disconnect(uint)     { f.disconnected = true }

func (f *fakeBroker) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	var s string
	switch v := payload.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	}
	f.msgs = append(f.msgs, published{topic, retained, s})
	return doneToken{}
}

func mqttConfig() config.MQTTConfig {
	c := config.Default().MQTT
	c.ClientID = "nas-ina219-test"
	return c
}

func newTestPublisher(t *testing.T) (*Publisher, *fakeBroker, *time.Time) {
	t.Helper()
	p, err := New(mqttConfig(), slog.Default())
	require.NoError(t, err)

	fb := &fakeBroker{}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.client = fb
	p.now = func() time.Time { return clock }
	return p, fb, &clock
}

func TestDiscoveryMessages(t *testing.T) {
	msgs, err := DiscoveryMessages(mqttConfig())
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, "homeassistant/sensor/nas_ina219_voltage/config", msgs[0].Topic)
	assert.Equal(t, "homeassistant/sensor/nas_ina219_power/config", msgs[2].Topic)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &cfg))
	assert.Equal(t, "NAS INA219 Current", cfg["name"])
	assert.Equal(t, "nas/ina219/current", cfg["state_topic"])
	assert.Equal(t, "nas/ina219/status", cfg["availability_topic"])
	assert.Equal(t, "A", cfg["unit_of_measurement"])
	assert.Equal(t, "measurement", cfg["state_class"])

	dev := cfg["device"].(map[string]any)
	assert.Equal(t, "INA219", dev["model"])
	assert.Equal(t, []any{"nas_ina219"}, dev["identifiers"])

	for _, m := range msgs {
		assert.True(t, m.Retained, m.Topic)
	}
}

func TestAnnouncePublishesDiscoveryThenOnline(t *testing.T) {
	p, fb, _ := newTestPublisher(t)

	p.announce()

	require.Len(t, fb.msgs, 4)
	last := fb.msgs[3]
	assert.Equal(t, published{"nas/ina219/status", true, "online"}, last)
}

func TestPublishFormatsValues(t *testing.T) {
	p, fb, _ := newTestPublisher(t)
	p.announce()
	fb.msgs = nil

	p.Publish(ina219.Measurement{Voltage: 12.0456, Current: 0.5, Power: 6.0228})

	assert.Equal(t, []published{
		{"nas/ina219/voltage", false, "12.045600"},
		{"nas/ina219/current", false, "0.500000"},
		{"nas/ina219/power", false, "6.022800"},
	}, fb.msgs)
}

func TestPublishRefreshesOnline(t *testing.T) {
	p, fb, clock := newTestPublisher(t)
	p.announce()

	*clock = clock.Add(OnlineRefresh + time.Second)
	fb.msgs = nil
	p.Publish(ina219.Measurement{})
	require.Len(t, fb.msgs, 4)
	assert.Equal(t, "online", fb.msgs[3].payload)

	*clock = clock.Add(time.Second)
	fb.msgs = nil
	p.Publish(ina219.Measurement{})
	assert.Len(t, fb.msgs, 3)
}

func TestClosePublishesOffline(t *testing.T) {
	p, fb, _ := newTestPublisher(t)

	p.Close()

	require.Len(t, fb.msgs, 1)
	assert.Equal(t, published{"nas/ina219/status", true, "offline"}, fb.msgs[0])
	assert.True(t, fb.disconnected)
}
