// internal/publish/discovery.go
package publish

import (
	"encoding/json"
	"fmt"

	"github.com/pilab/busguard/internal/config"
)

// Message is one MQTT publication.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

type sensorKind struct {
	suffix      string
	name        string
	unit        string
	deviceClass string
}

var sensorKinds = []sensorKind{
	{"voltage", "Voltage", "V", "voltage"},
	{"current", "Current", "A", "current"},
	{"power", "Power", "W", "power"},
}

type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type sensorConfig struct {
	Name              string     `json:"name"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	UniqueID          string     `json:"unique_id"`
	DeviceClass       string     `json:"device_class"`
	StateClass        string     `json:"state_class"`
	Unit              string     `json:"unit_of_measurement"`
	Device            deviceInfo `json:"device"`
}

// AvailabilityTopic is where online/offline is published.
func AvailabilityTopic(c config.MQTTConfig) string { return c.BaseTopic + "/status" }

// DiscoveryMessages builds the retained Home Assistant discovery configs
// for the voltage, current and power sensors.
func DiscoveryMessages(c config.MQTTConfig) ([]Message, error) {
	dev := deviceInfo{
		Identifiers:  []string{c.DeviceID},
		Name:         c.DeviceName,
		Manufacturer: "Texas Instruments",
		Model:        "INA219",
	}

	out := make([]Message, 0, len(sensorKinds))
	for _, k := range sensorKinds {
		objectID := c.DeviceID + "_" + k.suffix
		payload, err := json.Marshal(sensorConfig{
			Name:              c.DeviceName + " " + k.name,
			StateTopic:        c.BaseTopic + "/" + k.suffix,
			AvailabilityTopic: AvailabilityTopic(c),
			UniqueID:          objectID,
			DeviceClass:       k.deviceClass,
			StateClass:        "measurement",
			Unit:              k.unit,
			Device:            dev,
		})
		if err != nil {
			return nil, fmt.Errorf("publish: discovery %s: %w", k.suffix, err)
		}
		out = append(out, Message{
			Topic:    fmt.Sprintf("%s/sensor/%s/config", c.DiscoveryPrefix, objectID),
			Payload:  payload,
			Retained: true,
		})
	}
	return out, nil
}
