package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

// MQTTNotifier publishes alert events to a broker topic
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// DialMQTT connects to broker with auto-reconnect
func DialMQTT(broker, clientID, topic string) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return NewMQTTNotifier(client, topic), nil
}

// NewMQTTNotifier wraps a connected client. Events are sent at QoS 1.
func NewMQTTNotifier(client mqtt.Client, topic string) *MQTTNotifier {
	return &MQTTNotifier{client: client, topic: topic, qos: 1}
}

func (m *MQTTNotifier) Name() string { return "mqtt" }

// Notify implements Notifier
func (m *MQTTNotifier) Notify(ctx context.Context, batch []alerts.Alert) error {
	payload, err := json.Marshal(NewEvent(batch))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := m.client.Publish(m.topic, m.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects, waiting briefly for in-flight work
func (m *MQTTNotifier) Close() {
	m.client.Disconnect(250)
}
