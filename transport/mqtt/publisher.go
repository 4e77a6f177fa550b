// Package mqtt publishes core.Context telemetry and accepts a remote
// current override, grounded on ocpp_server/internal/mqtt's Client and on
// the teleinfo/powertag publishers in the same retrieval pack.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"evse-coreboard/core"
)

// Config holds the broker connection and topic names.
type Config struct {
	Broker            string
	Username          string
	Password          string
	ClientID          string
	TelemetryTopic    string
	CurrentLimitTopic string
}

// Telemetry is the JSON payload published on Config.TelemetryTopic.
type Telemetry struct {
	State         string  `json:"state"`
	Mode          uint8   `json:"mode"`
	BalancedCurrent float64 `json:"balanced_current_a"`
	ErrorFlags    uint16  `json:"error_flags"`
	Timestamp     time.Time `json:"timestamp"`
}

// Client wraps a paho.mqtt.golang client the same way ocpp_server's
// mqtt.Client does: one struct, one logger, callback-driven subscriptions.
type Client struct {
	client paho.Client
	cfg    Config
	log    *logrus.Entry

	onCurrentLimit func(amps float64)
}

// NewClient builds (but does not connect) an MQTT client from cfg.
func NewClient(cfg Config, log *logrus.Entry) *Client {
	c := &Client{cfg: cfg, log: log}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(opts)
	return c
}

// OnCurrentLimit registers the callback invoked when a remote current limit
// message arrives on cfg.CurrentLimitTopic.
func (c *Client) OnCurrentLimit(fn func(amps float64)) {
	c.onCurrentLimit = fn
}

// Connect opens the broker connection.
func (c *Client) Connect() error {
	c.log.Info("connecting to MQTT broker")
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: connect: %w", token.Error())
	}
	c.log.Info("connected to MQTT broker")
	return nil
}

// Disconnect closes the broker connection.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

func (c *Client) onConnect(client paho.Client) {
	if c.cfg.CurrentLimitTopic == "" {
		return
	}
	if token := client.Subscribe(c.cfg.CurrentLimitTopic, 1, c.handleCurrentLimit); token.Wait() && token.Error() != nil {
		c.log.WithError(token.Error()).Error("failed to subscribe to current limit topic")
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.log.WithError(err).Error("MQTT connection lost")
}

func (c *Client) handleCurrentLimit(_ paho.Client, msg paho.Message) {
	var payload struct {
		Amps float64 `json:"amps"`
	}
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		c.log.WithError(err).Error("failed to parse current limit message")
		return
	}
	if c.onCurrentLimit != nil {
		c.onCurrentLimit(payload.Amps)
	}
}

// telemetryFrom builds the Telemetry snapshot published for ctx, split out
// from PublishTelemetry so the shaping logic can be exercised without a
// broker connection.
func telemetryFrom(ctx *core.Context) Telemetry {
	return Telemetry{
		State:           ctx.State.String(),
		Mode:            uint8(ctx.Mode),
		BalancedCurrent: float64(ctx.Balanced[0]) / 10.0,
		ErrorFlags:      uint16(ctx.ErrorFlags),
		Timestamp:       time.Now(),
	}
}

// PublishTelemetry publishes a snapshot of ctx to Config.TelemetryTopic.
func (c *Client) PublishTelemetry(ctx *core.Context) error {
	payload, err := json.Marshal(telemetryFrom(ctx))
	if err != nil {
		return fmt.Errorf("mqtt: marshal telemetry: %w", err)
	}

	token := c.client.Publish(c.cfg.TelemetryTopic, 0, false, payload)
	token.Wait()
	return token.Error()
}
