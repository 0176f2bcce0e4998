package mesh

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTClient wraps the broker connection used to publish alignment results
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	isConnected bool
	mu          sync.RWMutex
}

// mqttSettings resolves broker settings, letting MQTT_* env vars override the
// config file.
func mqttSettings(config *Config) MQTTConfig {
	var s MQTTConfig
	if config != nil {
		s = config.MQTT
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		s.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		s.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		s.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		s.Password = v
	}
	if s.ClientID == "" {
		// unique per run so concurrent runs don't kick each other off the broker
		s.ClientID = "skymesh-" + uuid.NewString()[:8]
	}
	return s
}

// ConnectMQTT connects to the configured broker, retrying with backoff up to
// attempts times. If no broker is configured, MQTT is disabled and this
// returns nil, nil.
func ConnectMQTT(config *Config, attempts int) (*MQTTClient, error) {
	settings := mqttSettings(config)
	if settings.Broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	client := &MQTTClient{config: config}

	// Build MQTT client options
	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	if settings.Username != "" {
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)

	// Callbacks
	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)

	client.client = mqtt.NewClient(opts)
	if err := client.connectWithRetry(attempts); err != nil {
		return nil, err
	}
	return client, nil
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry(attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	retryDelay := 1 * time.Second
	maxRetryDelay := 30 * time.Second

	var lastErr error
	for i := 0; i < attempts; i++ {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return nil
			}
			lastErr = token.Error()
			log.Printf("MQTT connection failed: %v", lastErr)
		} else {
			lastErr = fmt.Errorf("timeout")
			log.Println("MQTT connection timeout")
		}

		if i == attempts-1 {
			break
		}
		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
	return fmt.Errorf("connecting to MQTT broker after %d attempts: %w", attempts, lastErr)
}

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected")
	c.setConnected(true)
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config) *MQTTClient {
	return &MQTTClient{
		client: client,
		config: config,
	}
}
