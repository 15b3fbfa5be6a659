package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
	"github.com/markus-lassfolk/gpsselect/pkg/logx"
)

// ErrNotConnected is returned when publishing on an enabled client that has
// no broker connection
var ErrNotConnected = errors.New("not connected to MQTT broker")

// Config holds MQTT configuration
type Config struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Broker      string `json:"broker" yaml:"broker"`
	Port        int    `json:"port" yaml:"port"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	QoS         int    `json:"qos" yaml:"qos"`
	Retain      bool   `json:"retain" yaml:"retain"`
}

// DefaultConfig returns default MQTT configuration
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Broker:      "localhost",
		Port:        1883,
		ClientID:    "gpsselectd",
		TopicPrefix: "gpsselect",
		QoS:         1,
		Retain:      false,
	}
}

// FixHandler receives decoded fixes from the fix topics
type FixHandler func(source gps.Source, fix gps.Fix)

// Client subscribes to GPS fix topics and publishes selection results and
// alerts. A disabled client accepts every call and does nothing.
type Client struct {
	client MQTT.Client
	logger *logx.Logger
	config Config

	mu          sync.RWMutex
	connected   bool
	lastPublish time.Time
	fixHandler  FixHandler
	onDrop      func()
}

// NewClient creates a new MQTT client
func NewClient(config Config, logger *logx.Logger) *Client {
	return &Client{
		logger: logger,
		config: config,
	}
}

// Connect establishes connection to MQTT broker
func (c *Client) Connect() error {
	if !c.config.Enabled {
		c.logger.Debug("MQTT client disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = MQTT.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.logger.Info("MQTT client connected", map[string]interface{}{
		"broker": c.config.Broker,
		"port":   c.config.Port,
	})

	return nil
}

// Disconnect disconnects from MQTT broker
func (c *Client) Disconnect() {
	if c.client == nil || !c.IsConnected() {
		return
	}
	c.client.Disconnect(250)
	c.setConnected(false)
	c.logger.Info("MQTT client disconnected")
}

// onConnect runs on the first connect and on every automatic reconnect. The
// session is clean, so fix subscriptions are made again each time.
func (c *Client) onConnect(client MQTT.Client) {
	c.setConnected(true)
	c.logger.Info("MQTT connection established")

	c.mu.RLock()
	handler := c.fixHandler
	c.mu.RUnlock()
	if handler == nil {
		return
	}
	if err := c.subscribe(client, handler); err != nil {
		c.logger.Error("Failed to restore fix subscriptions", "error", err)
	}
}

func (c *Client) onConnectionLost(client MQTT.Client, err error) {
	c.setConnected(false)
	c.logger.Error("MQTT connection lost", "error", err)
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// IsConnected returns whether the MQTT client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// OnDroppedFix registers fn to be called for every fix message that is
// dropped, either for its topic or its payload
func (c *Client) OnDroppedFix(fn func()) {
	c.mu.Lock()
	c.onDrop = fn
	c.mu.Unlock()
}

func (c *Client) dropped() {
	c.mu.RLock()
	fn := c.onDrop
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// LastPublish returns the time of the last successful publish
func (c *Client) LastPublish() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPublish
}

// FixTopic returns the topic a source's fixes arrive on
func (c *Client) FixTopic(source gps.Source) string {
	return fmt.Sprintf("%s/fix/%s", c.config.TopicPrefix, source)
}

// SourceFromTopic extracts the source from a fix topic
func (c *Client) SourceFromTopic(topic string) (gps.Source, bool) {
	rest, ok := strings.CutPrefix(topic, c.config.TopicPrefix+"/fix/")
	if !ok {
		return "", false
	}
	source := gps.Source(rest)
	return source, source.IsActive()
}

// SubscribeFixes subscribes to both sources' fix topics. The subscriptions
// are restored after every reconnect.
func (c *Client) SubscribeFixes(handler FixHandler) error {
	if !c.config.Enabled {
		return nil
	}

	c.mu.Lock()
	c.fixHandler = handler
	c.mu.Unlock()

	return c.subscribe(c.client, handler)
}

func (c *Client) subscribe(client MQTT.Client, handler FixHandler) error {
	for _, source := range []gps.Source{gps.SourceRUTOS, gps.SourceStarlink} {
		topic := c.FixTopic(source)
		token := client.Subscribe(topic, byte(c.config.QoS), c.fixMessageHandler(handler))
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
		}
		c.logger.Info("MQTT subscription created", "topic", topic)
	}
	return nil
}

// fixMessageHandler decodes fix payloads. Undecodable payloads are logged
// and dropped.
func (c *Client) fixMessageHandler(handler FixHandler) MQTT.MessageHandler {
	return func(_ MQTT.Client, msg MQTT.Message) {
		source, ok := c.SourceFromTopic(msg.Topic())
		if !ok {
			c.logger.Warn("Fix received on unexpected topic", "topic", msg.Topic())
			c.dropped()
			return
		}

		fix, err := DecodeFix(msg.Payload())
		if err != nil {
			c.logger.Warn("Dropping undecodable fix", "topic", msg.Topic(), "error", err)
			c.dropped()
			return
		}

		c.logger.Trace("Fix received", "source", source, "available", fix.Available())
		handler(source, fix)
	}
}

// PublishSelection publishes the outcome of a selection cycle
func (c *Client) PublishSelection(result gps.SelectionResult) error {
	return c.publishJSON(c.config.TopicPrefix+"/selection", map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"selection": result,
	})
}

// PublishAlert publishes one alert on the topic of its level
func (c *Client) PublishAlert(alert gps.Alert) error {
	return c.publishJSON(fmt.Sprintf("%s/alerts/%s", c.config.TopicPrefix, alert.Level), alert)
}

// PublishStability publishes a stability check for source
func (c *Client) PublishStability(source gps.Source, result gps.StabilityResult) error {
	return c.publishJSON(fmt.Sprintf("%s/stability/%s", c.config.TopicPrefix, source), map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"source":    source,
		"stability": result,
	})
}

// PublishState publishes the monitor state after a tick
func (c *Client) PublishState(state gps.MonitorState) error {
	return c.publishJSON(c.config.TopicPrefix+"/state", state)
}

// PublishPosition publishes a position that moved significantly
func (c *Client) PublishPosition(source gps.Source, fix gps.Fix) error {
	return c.publishJSON(c.config.TopicPrefix+"/position", map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"source":    source,
		"fix":       fix,
	})
}

// publishJSON publishes JSON payload to MQTT topic
func (c *Client) publishJSON(topic string, payload interface{}) error {
	if !c.config.Enabled {
		return nil
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	token := c.client.Publish(topic, byte(c.config.QoS), c.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.mu.Lock()
	c.lastPublish = time.Now()
	c.mu.Unlock()

	c.logger.Debug("MQTT message published", "topic", topic, "size", len(data))
	return nil
}
