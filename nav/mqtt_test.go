package nav

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMQTT_Disabled(t *testing.T) {
	muteLogs(t)
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(DefaultConfig(), nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_NoConfig(t *testing.T) {
	muteLogs(t)
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")

	_, err := InitMQTT(nil, nil)
	assert.Error(t, err)
}

func TestGetMQTTClient_NotInitialized(t *testing.T) {
	clientMu.Lock()
	globalClient = nil
	clientMu.Unlock()

	assert.Nil(t, GetMQTTClient())
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected(), "New client should not be connected")

	client.setConnected(true)
	assert.True(t, client.IsConnected())

	client.setConnected(false)
	assert.False(t, client.IsConnected())
}

func TestMQTTClient_ConcurrentAccess(t *testing.T) {
	client := &MQTTClient{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				client.setConnected(j%2 == 0)
				_ = client.IsConnected()
			}
		}()
	}
	wg.Wait()
}

func TestMQTTClient_KindForTopic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MQTT.PoseTopic = "phone/pose"
	client := newMQTTClientWithMock(NewMockClient(), cfg, nil)

	tests := []struct {
		name     string
		topic    string
		wantKind MessageKind
		wantOK   bool
	}{
		{"custom pose topic", "phone/pose", MessagePose, true},
		{"default landmark topic", DefaultLandmarkTopic, MessageLandmark, true},
		{"default route topic", DefaultRouteTopic, MessageRoute, true},
		{"replaced default", DefaultPoseTopic, "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := client.KindForTopic(tt.topic)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestOnConnect_SubscribesDeviceTopics(t *testing.T) {
	muteLogs(t)
	mc := NewMockClient()
	mc.SetConnected(true)

	client := newMQTTClientWithMock(mc, nil, nil)
	client.onConnect(mc)

	assert.True(t, client.IsConnected())
	assert.Equal(t, []string{
		DefaultGeolocationTopic,
		DefaultLandmarkTopic,
		DefaultPoseTopic,
		DefaultRouteTopic,
	}, mc.Subscriptions())
}

func TestOnConnect_SubscribeErrorIsLogged(t *testing.T) {
	var logged []string
	original := Logf
	Logf = func(format string, v ...interface{}) { logged = append(logged, format) }
	t.Cleanup(func() { Logf = original })

	mc := NewMockClient()
	mc.SetConnected(true)
	mc.SetSubscribeError(errors.New("not authorized"))

	client := newMQTTClientWithMock(mc, nil, nil)
	client.onConnect(mc)

	assert.Empty(t, mc.Subscriptions())
	assert.Contains(t, logged, "[MQTT] Error subscribing to %s: %v")
}

func TestOnConnectionLost(t *testing.T) {
	muteLogs(t)
	client := newMQTTClientWithMock(NewMockClient(), nil, nil)
	client.setConnected(true)

	client.onConnectionLost(nil, errors.New("EOF"))
	assert.False(t, client.IsConnected())
}

func TestCreateMessageHandler(t *testing.T) {
	muteLogs(t)
	mc := NewMockClient()
	mc.SetConnected(true)

	var (
		gotKind MessageKind
		gotRaw  []byte
		gotMsg  *DeviceMessage
		gotErr  error
	)
	handler := func(kind MessageKind, raw []byte, msg *DeviceMessage, err error) {
		gotKind, gotRaw, gotMsg, gotErr = kind, raw, msg, err
	}
	client := newMQTTClientWithMock(mc, nil, handler)
	client.onConnect(mc)

	mc.SimulateMessage(DefaultRouteTopic, []byte(`{"landmarks": ["A", "B"]}`))
	assert.Equal(t, MessageRoute, gotKind)
	require.NoError(t, gotErr)
	require.NotNil(t, gotMsg)
	assert.Equal(t, []string{"A", "B"}, gotMsg.Route.Landmarks)

	payload := []byte(`{invalid json`)
	mc.SimulateMessage(DefaultPoseTopic, payload)
	assert.Equal(t, MessagePose, gotKind)
	assert.Error(t, gotErr)
	assert.Nil(t, gotMsg)
	assert.Equal(t, payload, gotRaw, "raw payload is passed through on decode errors")
}

func TestDisconnect(t *testing.T) {
	muteLogs(t)
	mc := NewMockClient()
	mc.SetConnected(true)
	client := newMQTTClientWithMock(mc, nil, nil)
	client.setConnected(true)

	client.Disconnect()
	assert.False(t, client.IsConnected())
	assert.False(t, mc.IsConnected())

	// Disconnecting twice is harmless.
	client.Disconnect()
}

func TestConnectWithRetry_Mock(t *testing.T) {
	muteLogs(t)
	mc := NewMockClient()
	client := newMQTTClientWithMock(mc, nil, nil)
	mc.SetOnConnect(client.onConnect)

	client.connectWithRetry()

	assert.True(t, client.IsConnected())
	assert.Len(t, mc.Subscriptions(), 4)
}
