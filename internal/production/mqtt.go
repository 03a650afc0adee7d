package production

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/comalice/pimulator/realtime"
)

// MQTTPublisher is the part of mqtt.Client the sink uses.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink forwards snapshots as JSON telemetry. Publish hands the message
// to the client and returns; delivery errors are logged.
type MQTTSink struct {
	client  MQTTPublisher
	topic   string
	qos     byte
	timeout time.Duration
	logger  *zap.Logger
}

// NewMQTTSink publishes to topic at QoS 0.
func NewMQTTSink(client MQTTPublisher, topic string, logger *zap.Logger) *MQTTSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTSink{client: client, topic: topic, timeout: 5 * time.Second, logger: logger}
}

func (s *MQTTSink) Publish(snap realtime.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("failed to encode snapshot", zap.Uint64("tick", snap.Tick), zap.Error(err))
		return
	}
	token := s.client.Publish(s.topic, s.qos, false, payload)
	go func() {
		if !token.WaitTimeout(s.timeout) {
			s.logger.Warn("mqtt publish timed out", zap.String("topic", s.topic), zap.Uint64("tick", snap.Tick))
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Warn("mqtt publish failed", zap.String("topic", s.topic), zap.Uint64("tick", snap.Tick), zap.Error(err))
		}
	}()
}

// DialMQTT connects to broker (host:port) and keeps reconnecting in the
// background after the first connection.
func DialMQTT(broker, clientID string, logger *zap.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("connected to MQTT broker", zap.String("broker", broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.String("broker", broker), zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return client, nil
}
