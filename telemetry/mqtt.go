package telemetry

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const mqttTimeout = 5 * time.Second

// MQTTEmitter publishes JSON points to `<topic>` for state and `<topic>/gauge` for gauges.
type MQTTEmitter struct {
	client mqtt.Client
	topic string
}

func NewMQTTEmitter(broker, clientID, topic string) (*MQTTEmitter, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("Broker", broker).Msg("telemetry: MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()

	if !token.WaitTimeout(mqttTimeout) {
		log.Warn().Str("Broker", broker).Msg("telemetry: MQTT broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %v: %w", broker, err)
	}

	return &MQTTEmitter{client: client, topic: topic}, nil
}

func (e *MQTTEmitter) Topic(p Point) string {
	if p.Gauge {
		return e.topic + "/gauge"
	}
	return e.topic
}

func (e *MQTTEmitter) Emit(ctx context.Context, p Point) error {
	token := e.client.Publish(e.Topic(p), 0, false, FormatJSON.Encode(p))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	case <-time.After(mqttTimeout):
		return fmt.Errorf("timed out publishing to %v", e.Topic(p))
	}
}

func (e *MQTTEmitter) Close() error {
	e.client.Disconnect(250)
	return nil
}
