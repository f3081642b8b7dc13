package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gwillem/glove/pkg/pose"
)

// publishWait bounds how long Apply waits for the broker to take a message.
const publishWait = 5 * time.Millisecond

// MQTTPublisher publishes every snapshot as retained JSON on one topic.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// NewMQTTPublisher connects to broker. An empty clientID gets a random one.
func NewMQTTPublisher(broker, topic, clientID string) (*MQTTPublisher, error) {
	if clientID == "" {
		clientID = "glove-" + uuid.NewString()[:8]
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.WithFields(log.Fields{"broker": broker, "topic": topic}).Info("mqtt: connected")
	return &MQTTPublisher{client: client, topic: topic}, nil
}

// Name identifies the sink in logs.
func (p *MQTTPublisher) Name() string {
	return "mqtt"
}

// Apply publishes snap at QoS 0. It waits at most publishWait; a publish
// still in flight after that completes in the background.
func (p *MQTTPublisher) Apply(_ context.Context, snap pose.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal pose: %w", err)
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(publishWait) {
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// Close disconnects, giving in-flight messages 250ms.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
