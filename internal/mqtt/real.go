package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/uselessbox/internal/logic"
)

// BufferSize is how many messages are kept while the broker is unreachable.
const BufferSize = 100

// RealPublisher publishes to an actual MQTT broker.
// Messages published while disconnected are buffered and replayed, oldest
// first, when the connection comes back.
type RealPublisher struct {
	client    paho.Client
	topic     string
	log       *slog.Logger
	connected atomic.Bool

	mu       sync.Mutex
	buffer   *ringBuffer
	everUp   bool
	clientID string
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// cannot be reached within the connect timeout the publisher is still
// returned; it keeps retrying in the background and buffers until then.
func NewRealPublisher(broker, clientID string, log *slog.Logger) (*RealPublisher, error) {
	p := newPublisher(clientID, log)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warn("mqtt broker not reachable yet, buffering", "broker", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// newPublisher builds a disconnected publisher; the caller sets client.
func newPublisher(clientID string, log *slog.Logger) *RealPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &RealPublisher{
		topic:    Topic,
		log:      log,
		buffer:   newRingBuffer(BufferSize, log),
		clientID: clientID,
	}
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.connected.Store(true)

	p.mu.Lock()
	reconnect := p.everUp
	p.everUp = true
	dropped := p.buffer.dropped
	pending := p.buffer.drainAll()
	p.mu.Unlock()

	if reconnect {
		p.log.Info("mqtt reconnected", "replaying", len(pending), "dropped", dropped)
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		pending = append([]bufferedMsg{{topic: TopicSystem, payload: payload, qos: 1, retained: true}}, pending...)
	} else {
		p.log.Info("mqtt connected", "client_id", p.clientID)
	}

	for _, msg := range pending {
		if err := p.send(msg); err != nil {
			p.log.Warn("mqtt replay failed", "topic", msg.topic, "err", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(c paho.Client, err error) {
	p.connected.Store(false)
	p.log.Warn("mqtt connection lost", "err", err)
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.connected.Load() {
		p.mu.Lock()
		p.buffer.push(msg)
		p.mu.Unlock()
		return nil
	}
	if err := p.send(msg); err != nil {
		p.mu.Lock()
		p.buffer.push(msg)
		p.mu.Unlock()
		return err
	}
	return nil
}

// Publish sends a box event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once): lifecycle events must arrive
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.connected.Load()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	p.connected.Store(false)
	return nil
}
