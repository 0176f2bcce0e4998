package mesh

import (
	"errors"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// errMockSubscribe is returned by the subscription methods of MockClient;
// nothing in skymesh consumes topics.
var errMockSubscribe = errors.New("mock client does not support subscriptions")

// doneToken is an already-completed mqtt.Token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// MockMessage is one recorded publish.
type MockMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MockClient is an in-memory mqtt.Client that records publishes. Connect and
// Publish can be made to fail.
type MockClient struct {
	mu              sync.RWMutex
	connected       bool
	connectErr      error
	connectAttempts int
	publishErr      error
	messages        []MockMessage
}

var _ mqtt.Client = (*MockClient)(nil)

// NewMockClient returns a disconnected mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

// SetConnectError makes Connect fail with err.
func (c *MockClient) SetConnectError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

// SetPublishError makes Publish fail with err while connected.
func (c *MockClient) SetPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

func (c *MockClient) ConnectAttempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectAttempts
}

// GetPublishedMessages returns a copy of every recorded publish.
func (c *MockClient) GetPublishedMessages() []MockMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]MockMessage(nil), c.messages...)
}

// MessagesWithPrefix returns recorded publishes whose topic starts with prefix.
func (c *MockClient) MessagesWithPrefix(prefix string) []MockMessage {
	var out []MockMessage
	for _, m := range c.GetPublishedMessages() {
		if strings.HasPrefix(m.Topic, prefix) {
			out = append(out, m)
		}
	}
	return out
}

func (c *MockClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *MockClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *MockClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectAttempts++
	if c.connectErr == nil {
		c.connected = true
	}
	return doneToken{c.connectErr}
}

func (c *MockClient) Disconnect(uint) {
	c.SetConnected(false)
}

// Publish records the message. Payloads other than []byte and string are
// recorded as empty.
func (c *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.connected:
		return doneToken{mqtt.ErrNotConnected}
	case c.publishErr != nil:
		return doneToken{c.publishErr}
	}

	msg := MockMessage{Topic: topic, QoS: qos, Retain: retained}
	switch v := payload.(type) {
	case []byte:
		msg.Payload = v
	case string:
		msg.Payload = []byte(v)
	}
	c.messages = append(c.messages, msg)
	return doneToken{}
}

func (c *MockClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken{errMockSubscribe}
}

func (c *MockClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken{errMockSubscribe}
}

func (c *MockClient) Unsubscribe(...string) mqtt.Token {
	return doneToken{errMockSubscribe}
}

func (c *MockClient) AddRoute(string, mqtt.MessageHandler) {}

func (c *MockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}
