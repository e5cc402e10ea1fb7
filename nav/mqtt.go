package nav

import (
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler is called for every message on a subscribed device topic.
// msg is nil when the payload could not be decoded; raw is always the
// payload as received.
type MessageHandler func(kind MessageKind, raw []byte, msg *DeviceMessage, err error)

// MQTTClient manages the broker connection and the device subscriptions.
type MQTTClient struct {
	client         mqtt.Client
	config         *Config
	messageHandler MessageHandler
	isConnected    bool
	mu             sync.RWMutex
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT connects to the broker named by MQTT_BROKER or the config. When
// neither names one MQTT is disabled and InitMQTT returns nil, nil. The
// connection is made in the background.
func InitMQTT(config *Config, handler MessageHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil {
		broker = config.MQTT.Broker
	}
	if broker == "" {
		Logf("[MQTT] Disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if config == nil {
		return nil, fmt.Errorf("MQTT enabled but no configuration provided")
	}
	config.applyDefaults()

	client := &MQTTClient{
		config:         config,
		messageHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "wayfinder"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // keep subscriptions across reconnects

	// Pose ticks must reach the calibrator in order. The handler only
	// queues; Navigator.Run does the work.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the client created by the last InitMQTT.
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// connectWithRetry connects with exponential backoff capped at a minute.
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		Logf("[MQTT] Connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				Logf("[MQTT] Connected to broker")
				c.setConnected(true)
				return
			}
			Logf("[MQTT] Connection failed: %v", token.Error())
		} else {
			Logf("[MQTT] Connection timeout")
		}

		Logf("[MQTT] Retrying connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// topics maps each subscribed topic to the kind of message it carries.
func (c *MQTTClient) topics() map[string]MessageKind {
	m := c.config.MQTT
	return map[string]MessageKind{
		m.PoseTopic:        MessagePose,
		m.LandmarkTopic:    MessageLandmark,
		m.GeolocationTopic: MessageGeolocation,
		m.RouteTopic:       MessageRoute,
	}
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	Logf("[MQTT] Connected, subscribing to device topics...")
	c.setConnected(true)

	for topic, kind := range c.topics() {
		if topic == "" {
			continue
		}
		token := client.Subscribe(topic, 0, c.createMessageHandler(kind))
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			Logf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
		} else {
			Logf("[MQTT] Subscribed to %s (%s)", topic, kind)
		}
	}
}

// onConnectionLost fires on transient drops; auto-reconnect retries.
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	Logf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	Logf("[MQTT] Reconnecting...")
}

// createMessageHandler decodes payloads on a topic carrying kind messages.
func (c *MQTTClient) createMessageHandler(kind MessageKind) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()

		decoded, err := DecodeMessage(kind, payload)
		if err != nil {
			Logf("[MQTT] Error decoding %s message on %s: %v", kind, msg.Topic(), err)
		}
		if c.messageHandler != nil {
			c.messageHandler(kind, payload, decoded, err)
		}
	}
}

// IsConnected reports whether the broker connection is up.
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect closes the connection, giving in-flight work 250ms.
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		Logf("[MQTT] Disconnecting from broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// KindForTopic returns the kind of message a topic carries.
func (c *MQTTClient) KindForTopic(topic string) (MessageKind, bool) {
	if topic == "" {
		return "", false
	}
	kind, ok := c.topics()[topic]
	return kind, ok
}

// GetClient returns the underlying client for publishing.
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wraps an existing client, usually a MockClient.
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler MessageHandler) *MQTTClient {
	if config == nil {
		config = DefaultConfig()
	}
	config.applyDefaults()
	return &MQTTClient{
		client:         client,
		config:         config,
		messageHandler: handler,
	}
}
