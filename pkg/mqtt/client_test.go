package mqtt

import (
	"io"
	"sync"
	"testing"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
	"github.com/markus-lassfolk/gpsselect/pkg/logx"
)

// fakeMessage implements the paho Message interface
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// completedToken is a token that has already succeeded
type completedToken struct {
	MQTT.Token
}

func (completedToken) Wait() bool   { return true }
func (completedToken) Error() error { return nil }

// recordingBroker implements the Subscribe part of the paho Client interface
type recordingBroker struct {
	MQTT.Client

	mu       sync.Mutex
	topics   []string
	handlers []MQTT.MessageHandler
}

func (b *recordingBroker) Subscribe(topic string, _ byte, callback MQTT.MessageHandler) MQTT.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.handlers = append(b.handlers, callback)
	return completedToken{}
}

func testLogger() *logx.Logger {
	l := logx.NewLogger("debug", "mqtt_test")
	l.SetOutput(io.Discard)
	return l
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost", cfg.Broker)
	assert.Equal(t, 1883, cfg.Port)
	assert.Equal(t, "gpsselect", cfg.TopicPrefix)
	assert.Equal(t, 1, cfg.QoS)
}

func TestClient_Topics(t *testing.T) {
	c := NewClient(DefaultConfig(), testLogger())

	assert.Equal(t, "gpsselect/fix/rutos", c.FixTopic(gps.SourceRUTOS))
	assert.Equal(t, "gpsselect/fix/starlink", c.FixTopic(gps.SourceStarlink))

	source, ok := c.SourceFromTopic("gpsselect/fix/starlink")
	assert.True(t, ok)
	assert.Equal(t, gps.SourceStarlink, source)

	_, ok = c.SourceFromTopic("gpsselect/fix/none")
	assert.False(t, ok)
	_, ok = c.SourceFromTopic("other/fix/rutos")
	assert.False(t, ok)
}

func TestClient_DisabledIsNoop(t *testing.T) {
	c := NewClient(DefaultConfig(), testLogger())

	require.NoError(t, c.Connect())
	require.NoError(t, c.SubscribeFixes(func(gps.Source, gps.Fix) {}))
	assert.NoError(t, c.PublishSelection(gps.SelectionResult{}))
	assert.NoError(t, c.PublishAlert(gps.Alert{Level: gps.LevelInfo}))
	assert.NoError(t, c.PublishState(gps.MonitorState{}))
	assert.False(t, c.IsConnected())
	c.Disconnect()
}

func TestClient_EnabledWithoutConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	c := NewClient(cfg, testLogger())

	assert.ErrorIs(t, c.PublishSelection(gps.SelectionResult{}), ErrNotConnected)
	assert.True(t, c.LastPublish().IsZero())
}

func TestClient_ReconnectRestoresSubscriptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	c := NewClient(cfg, testLogger())
	broker := &recordingBroker{}
	c.client = broker

	// first connect happens before any handler is registered
	c.onConnect(broker)
	assert.Empty(t, broker.topics)

	var received []gps.Source
	require.NoError(t, c.SubscribeFixes(func(source gps.Source, _ gps.Fix) {
		received = append(received, source)
	}))
	assert.Equal(t, []string{"gpsselect/fix/rutos", "gpsselect/fix/starlink"}, broker.topics)

	// broker restart: paho reconnects and calls the connect handler again
	c.onConnectionLost(broker, assert.AnError)
	c.onConnect(broker)
	require.Len(t, broker.topics, 4)
	assert.Equal(t, []string{"gpsselect/fix/rutos", "gpsselect/fix/starlink"}, broker.topics[2:])

	// the restored subscription still feeds fixes to the original handler
	broker.handlers[3](broker, &fakeMessage{topic: "gpsselect/fix/starlink", payload: []byte(`{"latitude":1,"longitude":2,"accuracy":3}`)})
	assert.Equal(t, []gps.Source{gps.SourceStarlink}, received)
}

func TestClient_FixMessageHandler(t *testing.T) {
	c := NewClient(DefaultConfig(), testLogger())
	drops := 0
	c.OnDroppedFix(func() { drops++ })

	var got []gps.Source
	var fixes []gps.Fix
	handler := c.fixMessageHandler(func(source gps.Source, fix gps.Fix) {
		got = append(got, source)
		fixes = append(fixes, fix)
	})

	handler(nil, &fakeMessage{topic: "gpsselect/fix/rutos", payload: []byte(`{"latitude":59.1,"longitude":18.2,"accuracy":0.4}`)})
	handler(nil, &fakeMessage{topic: "gpsselect/fix/starlink", payload: []byte(`garbage`)})
	handler(nil, &fakeMessage{topic: "gpsselect/other", payload: []byte(`{"latitude":1,"longitude":2}`)})

	handler(nil, &fakeMessage{topic: "gpsselect/fix/rutos", payload: []byte(`$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A`)})

	require.Len(t, got, 1)
	assert.Equal(t, 3, drops, "garbage payload, foreign topic and a non-GGA sentence")
	assert.Equal(t, gps.SourceRUTOS, got[0])
	assert.Equal(t, 59.1, fixes[0].Latitude)
	require.NotNil(t, fixes[0].Accuracy)
	assert.Equal(t, 0.4, *fixes[0].Accuracy)
}

func TestDecodeFix_JSON(t *testing.T) {
	fix, err := DecodeFix([]byte(` {"latitude":59.33,"longitude":18.06,"altitude":25.5,"accuracy":5} `))
	require.NoError(t, err)
	assert.Equal(t, 59.33, fix.Latitude)
	require.NotNil(t, fix.Altitude)
	assert.Equal(t, 25.5, *fix.Altitude)
	assert.True(t, fix.Available())

	fix, err = DecodeFix([]byte(`{"latitude":59.33,"longitude":18.06,"accuracy":null}`))
	require.NoError(t, err)
	assert.False(t, fix.Available())

	_, err = DecodeFix([]byte(`{"latitude":95,"longitude":0}`))
	assert.Error(t, err)

	_, err = DecodeFix([]byte(`{"latitude":1,"longitude":2,"accuracy":-1}`))
	assert.Error(t, err)

	_, err = DecodeFix([]byte(`{"latitude":`))
	assert.Error(t, err)
}

func TestDecodeFix_NMEA(t *testing.T) {
	fix, err := DecodeFix([]byte("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n"))
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, fix.Latitude, 1e-4)
	assert.InDelta(t, 11.5167, fix.Longitude, 1e-4)
	require.NotNil(t, fix.Altitude)
	assert.InDelta(t, 545.4, *fix.Altitude, 1e-9)
	require.NotNil(t, fix.Accuracy)
	assert.InDelta(t, 4.5, *fix.Accuracy, 1e-9)

	fix, err = DecodeFix([]byte("$GPGGA,123519,4807.038,N,01131.000,E,0,00,99.9,545.4,M,46.9,M,,*7E"))
	require.NoError(t, err)
	assert.False(t, fix.Available())

	_, err = DecodeFix([]byte("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"))
	assert.ErrorIs(t, err, ErrUnknownPayload)

	_, err = DecodeFix([]byte("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*00"))
	assert.Error(t, err)
}

func TestDecodeFix_Unknown(t *testing.T) {
	_, err := DecodeFix(nil)
	assert.ErrorIs(t, err, ErrUnknownPayload)
	_, err = DecodeFix([]byte("hello"))
	assert.ErrorIs(t, err, ErrUnknownPayload)
}
