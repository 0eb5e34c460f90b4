// internal/publish/mqtt.go
package publish

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pilab/busguard/internal/config"
	"github.com/pilab/busguard/internal/device/ina219"
)

const (
	// OnlineRefresh is how often the retained "online" is re-published, so
	// a broker restart without persistence does not leave it missing.
	OnlineRefresh = 30 * time.Second

	keepAlive      = 60 * time.Second
	retryInterval  = 5 * time.Second
	publishTimeout = time.Second
	quiesceMs      = 250
)

// broker is the part of mqtt.Client the publisher uses.
type broker interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends measurements to MQTT with Home Assistant discovery.
// Connection loss never blocks the poll loop: publications made while
// disconnected are dropped and the client reconnects in the background.
type Publisher struct {
	cfg       config.MQTTConfig
	client    broker
	discovery []Message
	log       *slog.Logger

	mu         sync.Mutex
	lastOnline time.Time
	now        func() time.Time
}

// New builds a Publisher. Discovery and "online" are (re)published on every
// successful connection.
func New(c config.MQTTConfig, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	discovery, err := DiscoveryMessages(c)
	if err != nil {
		return nil, err
	}
	p := &Publisher{cfg: c, discovery: discovery, log: log.With("component", "mqtt"), now: time.Now}

	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + c.Host + ":" + strconv.Itoa(c.Port)).
		SetClientID(c.ClientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetBinaryWill(AvailabilityTopic(c), []byte("offline"), 0, true).
		SetOnConnectHandler(func(mqtt.Client) { p.announce() }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.log.Warn("broker connection lost", "error", err)
		})
	if c.User != "" || c.Password != "" {
		opts.SetUsername(c.User).SetPassword(c.Password)
	}

	p.client = mqtt.NewClient(opts)
	return p, nil
}

// Connect starts connecting in the background. It does not wait: the
// broker may come up after the monitor.
func (p *Publisher) Connect() {
	p.client.Connect()
	p.log.Info("connecting to broker", "host", p.cfg.Host, "port", p.cfg.Port, "client_id", p.cfg.ClientID)
}

// Publish sends one measurement and refreshes "online" when due.
func (p *Publisher) Publish(m ina219.Measurement) {
	base := p.cfg.BaseTopic
	p.client.Publish(base+"/voltage", 0, false, formatValue(m.Voltage))
	p.client.Publish(base+"/current", 0, false, formatValue(m.Current))
	p.client.Publish(base+"/power", 0, false, formatValue(m.Power))

	p.mu.Lock()
	due := p.now().Sub(p.lastOnline) > OnlineRefresh
	if due {
		p.lastOnline = p.now()
	}
	p.mu.Unlock()
	if due {
		p.client.Publish(AvailabilityTopic(p.cfg), 0, true, "online")
	}
}

// Close publishes the retained "offline" and disconnects.
func (p *Publisher) Close() {
	t := p.client.Publish(AvailabilityTopic(p.cfg), 0, true, "offline")
	if !t.WaitTimeout(publishTimeout) || t.Error() != nil {
		p.log.Debug("offline not delivered", "error", t.Error())
	}
	p.client.Disconnect(quiesceMs)
}

func (p *Publisher) announce() {
	for _, m := range p.discovery {
		p.client.Publish(m.Topic, 0, m.Retained, m.Payload)
	}
	p.client.Publish(AvailabilityTopic(p.cfg), 0, true, "online")

	p.mu.Lock()
	p.lastOnline = p.now()
	p.mu.Unlock()
	p.log.Info("broker connected, discovery published", "sensors", len(p.discovery))
}

func formatValue(v float64) string { return fmt.Sprintf("%.6f", v) }
