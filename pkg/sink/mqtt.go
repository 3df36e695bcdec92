package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTConfig configures an MQTT sink.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string

	// Topic receives every payload. Default: "sprout/readings".
	Topic string

	// ClientID identifies the connection. Default: "sprout-" + random suffix.
	ClientID string

	// QoS is the publish quality of service. Default: 0.
	QoS byte

	// Retained publishes retained messages so new MQTT subscribers get the
	// latest reading immediately.
	Retained bool

	// ConnectTimeout bounds the initial connection. Default: 5s.
	ConnectTimeout time.Duration
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.Topic == "" {
		c.Topic = "sprout/readings"
	}
	if c.ClientID == "" {
		c.ClientID = "sprout-" + uuid.NewString()[:8]
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	return c
}

// MQTTClient is the subset of mqtt.Client used by the sink.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes payloads to an MQTT topic.
type MQTT struct {
	counters
	client MQTTClient
	config MQTTConfig
	logger *slog.Logger
}

// NewMQTT wraps a connected client.
func NewMQTT(client MQTTClient, config MQTTConfig, opts ...Option) *MQTT {
	config = config.withDefaults()
	o := buildOptions("sink.mqtt", opts)
	return &MQTT{
		client: client,
		config: config,
		logger: o.logger.With("topic", config.Topic),
	}
}

// DialMQTT connects to the broker and returns a sink publishing to it. The
// client reconnects on its own after the initial connection.
func DialMQTT(ctx context.Context, config MQTTConfig, opts ...Option) (*MQTT, error) {
	config = config.withDefaults()
	o := buildOptions("sink.mqtt", opts)
	logger := o.logger.With("broker", config.Broker)

	copts := mqtt.NewClientOptions()
	copts.AddBroker(config.Broker)
	copts.SetClientID(config.ClientID)
	copts.SetAutoReconnect(true)
	copts.SetConnectRetry(true)
	copts.SetConnectRetryInterval(2 * time.Second)
	copts.SetMaxReconnectInterval(30 * time.Second)
	copts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connection established", "client_id", config.ClientID)
	})
	copts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "error", err)
	})

	client := mqtt.NewClient(copts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	case <-time.After(config.ConnectTimeout):
		client.Disconnect(0)
		return nil, fmt.Errorf("sink: mqtt connect to %s timed out", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("sink: mqtt connect to %s: %w", config.Broker, err)
	}

	return NewMQTT(client, config, opts...), nil
}

// Send publishes msg and waits for the broker acknowledgement or ctx.
func (m *MQTT) Send(ctx context.Context, msg []byte) error {
	if m.closed.Load() {
		return ErrClosed
	}

	token := m.client.Publish(m.config.Topic, m.config.QoS, m.config.Retained, msg)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return m.drop(m.logger, fmt.Errorf("publish: %w", ctx.Err()))
	}
	if err := token.Error(); err != nil {
		return m.drop(m.logger, err)
	}
	m.delivered.Add(1)
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.client.Disconnect(250)
	m.logger.Info("mqtt sink closed", "delivered", m.delivered.Load(), "dropped", m.dropped.Load())
	return nil
}
