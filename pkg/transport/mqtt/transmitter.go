package mqtt

import (
	"errors"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishTimeout bounds how long Transmit waits for the broker.
const DefaultPublishTimeout = time.Second

// ErrPublishTimeout indicates the broker did not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt: publish timeout")

// TopicPublisher publishes to a topic. Implemented by Queue.
type TopicPublisher interface {
	Pub(topic string, payload []byte) paho.Token
}

// Transmitter sends broadcast payloads to <prefix><device>/out.
type Transmitter struct {
	Publisher TopicPublisher
	Topic     string
	Timeout   time.Duration
}

// NewTransmitter creates a Transmitter for device.
func NewTransmitter(pub TopicPublisher, device string) *Transmitter {
	return &Transmitter{
		Publisher: pub,
		Topic:     DeviceTopic(device, TopicOut),
		Timeout:   DefaultPublishTimeout,
	}
}

// Transmit implements broadcast.Transmitter.
func (t *Transmitter) Transmit(p []byte) error {
	token := t.Publisher.Pub(t.Topic, p)
	if !token.WaitTimeout(t.Timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}
