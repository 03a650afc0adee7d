package production

import (
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/comalice/pimulator/realtime"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu   sync.Mutex
	sent []message
	err  error
}

func (f *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return doneToken{err: f.err}
}

func (f *fakeBroker) messages() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.sent...)
}

func TestMQTTSink_PublishesSnapshotJSON(t *testing.T) {
	broker := &fakeBroker{}
	sink := NewMQTTSink(broker, "pimulator/robot/state", zaptest.NewLogger(t))
	s := snap(4)

	sink.Publish(s)

	sent := broker.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "pimulator/robot/state", sent[0].topic)
	assert.Equal(t, byte(0), sent[0].qos)
	assert.False(t, sent[0].retained)

	var got realtime.Snapshot
	require.NoError(t, json.Unmarshal(sent[0].payload, &got))
	assert.True(t, got.Wall.Equal(s.Wall))
	got.Wall = s.Wall
	assert.Equal(t, s, got)
}

func TestMQTTSink_DeliveryErrorDoesNotPropagate(t *testing.T) {
	broker := &fakeBroker{err: errors.New("not connected")}
	sink := NewMQTTSink(broker, "t", nil)

	assert.NotPanics(t, func() {
		sink.Publish(snap(1))
		sink.Publish(snap(2))
	})
	assert.Len(t, broker.messages(), 2)
}
