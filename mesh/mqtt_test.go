package mesh

import (
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearMQTTEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD"} {
		t.Setenv(key, "")
	}
}

func TestConnectMQTT_Disabled(t *testing.T) {
	clearMQTTEnv(t)

	client, err := ConnectMQTT(DefaultConfig(), 1)
	assert.NoError(t, err)
	assert.Nil(t, client)

	client, err = ConnectMQTT(nil, 1)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestMQTTSettings(t *testing.T) {
	t.Run("config values", func(t *testing.T) {
		clearMQTTEnv(t)
		cfg := DefaultConfig()
		cfg.MQTT.Broker = "tcp://config:1883"
		cfg.MQTT.ClientID = "from-config"
		cfg.MQTT.Username = "user"

		s := mqttSettings(cfg)
		assert.Equal(t, "tcp://config:1883", s.Broker)
		assert.Equal(t, "from-config", s.ClientID)
		assert.Equal(t, "user", s.Username)
	})

	t.Run("env overrides config", func(t *testing.T) {
		clearMQTTEnv(t)
		t.Setenv("MQTT_BROKER", "tcp://env:1883")
		t.Setenv("MQTT_PASSWORD", "secret")
		cfg := DefaultConfig()
		cfg.MQTT.Broker = "tcp://config:1883"

		s := mqttSettings(cfg)
		assert.Equal(t, "tcp://env:1883", s.Broker)
		assert.Equal(t, "secret", s.Password)
	})

	t.Run("generated client id", func(t *testing.T) {
		clearMQTTEnv(t)
		a := mqttSettings(nil)
		b := mqttSettings(nil)
		assert.True(t, strings.HasPrefix(a.ClientID, "skymesh-"))
		assert.Len(t, a.ClientID, len("skymesh-")+8)
		assert.NotEqual(t, a.ClientID, b.ClientID)
	})
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected(), "New client should not be connected")

	client.setConnected(true)
	assert.True(t, client.IsConnected())

	client.setConnected(false)
	assert.False(t, client.IsConnected())
}

func TestMQTTClient_ConnectWithRetry(t *testing.T) {
	t.Run("first attempt succeeds", func(t *testing.T) {
		mock := NewMockClient()
		client := newMQTTClientWithMock(mock, DefaultConfig())

		require.NoError(t, client.connectWithRetry(3))
		assert.True(t, client.IsConnected())
		assert.Equal(t, 1, mock.ConnectAttempts())
	})

	t.Run("single failing attempt", func(t *testing.T) {
		mock := NewMockClient()
		mock.SetConnectError(errors.New("refused"))
		client := newMQTTClientWithMock(mock, DefaultConfig())

		start := time.Now()
		err := client.connectWithRetry(1)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "refused")
		assert.False(t, client.IsConnected())
		assert.Equal(t, 1, mock.ConnectAttempts())
		assert.Less(t, time.Since(start), time.Second, "no backoff after the last attempt")
	})
}

func TestMQTTClient_Callbacks(t *testing.T) {
	mock := NewMockClient()
	client := newMQTTClientWithMock(mock, DefaultConfig())

	client.onConnect(mock)
	assert.True(t, client.IsConnected())

	client.onConnectionLost(mock, errors.New("network down"))
	assert.False(t, client.IsConnected())
}

func TestMQTTClient_Disconnect(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	client := newMQTTClientWithMock(mock, DefaultConfig())
	client.setConnected(true)

	assert.Same(t, mock, client.GetClient())
	client.Disconnect()
	assert.False(t, client.IsConnected())
	assert.False(t, mock.IsConnected())

	// already disconnected: no-op
	client.Disconnect()
	(&MQTTClient{}).Disconnect()
}

func TestMockClient(t *testing.T) {
	mock := NewMockClient()

	token := mock.Publish("a/b", 0, false, "x")
	assert.Equal(t, mqtt.ErrNotConnected, token.Error())

	token = mock.Connect()
	assert.True(t, token.WaitTimeout(time.Second))
	assert.NoError(t, token.Error())
	assert.True(t, mock.IsConnectionOpen())

	mock.Publish("a/b", 1, true, "string payload")
	mock.Publish("c/d", 0, false, []byte("bytes"))
	require.Len(t, mock.GetPublishedMessages(), 2)
	assert.Equal(t, []byte("string payload"), mock.GetPublishedMessages()[0].Payload)
	assert.Len(t, mock.MessagesWithPrefix("c/"), 1)

	mock.SetPublishError(errors.New("broker full"))
	assert.EqualError(t, mock.Publish("a/b", 0, false, "x").Error(), "broker full")
	assert.Len(t, mock.GetPublishedMessages(), 2)

	handler := func(mqtt.Client, mqtt.Message) {}
	assert.Error(t, mock.Subscribe("t", 0, handler).Error())
	assert.Error(t, mock.SubscribeMultiple(map[string]byte{"u": 0}, handler).Error())
	assert.Error(t, mock.Unsubscribe("t").Error())

	mock.Disconnect(0)
	assert.False(t, mock.IsConnected())
}
