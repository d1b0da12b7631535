package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/dwell.report/internal/config"
	"github.com/banshee-data/dwell.report/internal/monitoring"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// publisher is the slice of paho's client interface the channel needs. It
// exists so tests can substitute a fake without a live broker.
type publisher interface {
	IsConnected() bool
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTChannel publishes events to a single broker topic. The underlying
// client is built lazily on first delivery, and paho's auto-reconnect
// handles broker restarts after that.
type MQTTChannel struct {
	mu        sync.Mutex
	client    publisher
	newClient func() publisher
	topic     string
	qos       byte
	logf      func(format string, v ...interface{})
}

// NewMQTTChannel builds a channel from the mqtt section of the tuning file.
func NewMQTTChannel(cfg *config.MQTTConfig) *MQTTChannel {
	c := &MQTTChannel{
		topic: cfg.GetTopic(),
		qos:   byte(cfg.GetQoS()),
		logf:  monitoring.Scoped("mqtt"),
	}
	c.newClient = func() publisher { return newPahoClient(cfg, c.logf) }
	return c
}

func newPahoClient(cfg *config.MQTTConfig, logf func(format string, v ...interface{})) publisher {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.GetBroker(), cfg.GetPort()))
	opts.SetClientID(cfg.GetClientID())
	if cfg.GetUsername() != "" {
		opts.SetUsername(cfg.GetUsername())
		opts.SetPassword(cfg.GetPassword())
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logf("Connection lost: %v", err)
	}
	return mqtt.NewClient(opts)
}

func (c *MQTTChannel) Name() string { return "mqtt" }

// Deliver publishes payload to the configured topic, connecting first if
// needed.
func (c *MQTTChannel) Deliver(ctx context.Context, _ behavior.Event, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := c.ensureConnected()
	if err != nil {
		return err
	}
	token := client.Publish(c.topic, c.qos, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish timed out after %s", mqttPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (c *MQTTChannel) ensureConnected() (publisher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = c.newClient()
	}
	if c.client.IsConnected() {
		return c.client, nil
	}
	token := c.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("connect timed out after %s", mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	c.logf("Connected to broker, publishing to %s at qos %d", c.topic, c.qos)
	return c.client, nil
}

// Close disconnects from the broker with a short quiesce so in-flight
// publishes can finish.
func (c *MQTTChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}
