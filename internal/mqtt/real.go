package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/irrigation-controller/internal/logic"
)

// bufferCapacity bounds the messages held while disconnected.
const bufferCapacity = 256

const publishTimeout = 5 * time.Second

var errPublishTimeout = errors.New("publish timeout")

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client

	mu            sync.Mutex
	buf           *ringBuffer
	replaying     bool // flush owns delivery; publish must buffer
	connectedOnce bool
	now           func() time.Time
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is established in the background; publishing before it is up buffers.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	p := &RealPublisher{
		buf: newRingBuffer(bufferCapacity),
		now: time.Now,
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, WillPayload(), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// onConnect runs on the paho goroutine. It queues RECONNECTED behind any
// backlog and starts a replay unless one is already running; at most one
// flush goroutine exists at a time.
func (p *RealPublisher) onConnect(paho.Client) {
	var reconnected []byte
	p.mu.Lock()
	reconnect := p.connectedOnce
	p.mu.Unlock()
	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err != nil {
			log.Printf("mqtt: format reconnected: %v", err)
		}
		reconnected = payload
	}

	p.mu.Lock()
	p.connectedOnce = true
	if reconnected != nil {
		p.buf.push(bufferedMsg{topic: TopicSystem, payload: reconnected, qos: 1})
	}
	start := !p.replaying
	p.replaying = true
	p.mu.Unlock()

	log.Printf("mqtt: connected (reconnect=%v)", reconnect)
	if start {
		go p.flush()
	}
}

// flush sends the buffer oldest first until it is found empty. Messages
// published meanwhile are buffered behind the backlog, so order holds.
func (p *RealPublisher) flush() {
	for {
		p.mu.Lock()
		msgs := p.buf.drainAll()
		if len(msgs) == 0 {
			p.replaying = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		for i, m := range msgs {
			if err := p.send(m); err != nil {
				log.Printf("mqtt: replay stopped after %d of %d: %v", i, len(msgs), err)
				p.mu.Lock()
				newer := p.buf.drainAll()
				for _, rest := range msgs[i:] {
					p.buf.push(rest)
				}
				for _, n := range newer {
					p.buf.push(n)
				}
				p.replaying = false
				p.mu.Unlock()
				return
			}
		}
	}
}

// publish sends m directly only when nothing older is waiting. The decision
// and the push happen under p.mu, the same lock flush drains under.
func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	switch {
	case p.replaying || !p.client.IsConnectionOpen():
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	case p.buf.len() > 0:
		// A failed replay left a backlog: queue behind it and retry.
		p.buf.push(m)
		p.replaying = true
		p.mu.Unlock()
		go p.flush()
		return nil
	}
	p.mu.Unlock()
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	return token.Error()
}

// Publish sends a transition event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	if err := p.publish(bufferedMsg{topic: Topic, payload: payload}); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) - lifecycle messages should arrive
	msg := bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}
	if err := p.publish(msg); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
