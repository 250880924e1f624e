package mqttingest

import (
	"context"
	"errors"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/TeoEchavarria/health-tech-app/internal/domain"
	"github.com/TeoEchavarria/health-tech-app/internal/persistence/memory"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeSubscriber struct {
	topic   string
	qos     byte
	handler mqtt.MessageHandler
	err     error
}

func (s *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	s.topic, s.qos, s.handler = topic, qos, handler
	return s.err
}

func TestParseTopic(t *testing.T) {
	tenant, user, recordType, err := ParseTopic("health/t1/u1/HeartRate")
	require.NoError(t, err)
	require.Equal(t, "t1", tenant)
	require.Equal(t, "u1", user)
	require.Equal(t, "HeartRate", recordType)

	for _, bad := range []string{"health/t1/u1", "iot/t1/u1/steps", "health//u1/steps", "health/t1/u1/steps/extra"} {
		_, _, _, err := ParseTopic(bad)
		require.Errorf(t, err, "topic %q", bad)
	}
}

func TestUnwrapAcceptsEnvelopeAndBareRecords(t *testing.T) {
	records, err := unwrap([]byte(`{"data":[{"a":1},{"b":2}]}`))
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, err = unwrap([]byte(`{"data":{"count":5},"start":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	require.Len(t, records, 1, "a normalised record is not an envelope")

	_, err = unwrap([]byte(`garbage`))
	require.Error(t, err)
}

func TestBridgeSyncsSubscribedMessages(t *testing.T) {
	svc := domain.NewService(memory.NewRepository())
	sub := &fakeSubscriber{}
	bridge := NewBridge(sub, svc, nil)

	require.NoError(t, bridge.Start(context.Background()))
	require.Equal(t, TopicFilter, sub.topic)
	require.Equal(t, byte(1), sub.qos)

	sub.handler(nil, fakeMessage{
		topic: "health/t1/u1/HeartRate",
		payload: []byte(`{"data":[{"metadata":{"id":"hr1","dataOrigin":"com.watch"},"startTime":"2024-04-02T06:00:00Z","endTime":"2024-04-02T06:10:00Z",
			"samples":[{"time":"2024-04-02T06:00:00Z","beatsPerMinute":60},{"time":"2024-04-02T06:05:00Z","beatsPerMinute":70}]}]}`),
	})

	agg, err := svc.GetDailyAggregate(context.Background(), domain.AggregateKey{TenantID: "t1", UserID: "u1", RecordType: "heartRate", Date: "2024-04-02"})
	require.NoError(t, err)
	require.Equal(t, 2, agg.RecordCount)
}

func TestBridgeStartReportsSubscribeFailure(t *testing.T) {
	bridge := NewBridge(&fakeSubscriber{err: errors.New("not connected")}, nil, nil)
	require.ErrorContains(t, bridge.Start(context.Background()), "not connected")
}
