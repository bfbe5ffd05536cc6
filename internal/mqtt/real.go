package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/tinywatch/internal/logic"
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BootID     string
	BufferSize int
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are kept in an outbox and sent on reconnect.
type RealPublisher struct {
	client paho.Client
	bootID string
	out    *outbox

	mu            sync.Mutex
	everConnected bool
}

// NewRealPublisher creates a publisher for the given broker. The initial
// connection is retried in the background; until it succeeds messages are
// buffered.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, errors.New("mqtt: broker not set")
	}
	clientID := o.ClientID
	if clientID == "" {
		clientID = "tinywatch"
	}

	p := &RealPublisher{
		bootID: o.BootID,
		out:    newOutbox(o.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
		BootID:    o.BootID,
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// onConnect replays the outbox. After a reconnect it also announces
// RECONNECTED.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everConnected
	p.everConnected = true
	p.mu.Unlock()

	if reconnect {
		log.Printf("mqtt: reconnected")
		payload, err := FormatSystemPayload(SystemEvent{
			Timestamp: time.Now(),
			Event:     "RECONNECTED",
			BootID:    p.bootID,
		})
		if err == nil {
			if err := p.send(c, bufferedMsg{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
				log.Printf("mqtt: publish RECONNECTED: %v", err)
			}
		}
	}

	msgs := p.out.drain()
	if len(msgs) > 0 {
		log.Printf("mqtt: replaying %d buffered messages", len(msgs))
	}
	for i, m := range msgs {
		if err := p.send(c, m); err != nil {
			log.Printf("mqtt: replay failed: %v", err)
			for _, rest := range msgs[i:] {
				p.out.push(rest)
			}
			return
		}
	}
}

func (p *RealPublisher) send(c paho.Client, m bufferedMsg) error {
	token := c.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.out.push(m)
		return nil
	}
	if err := p.send(p.client, m); err != nil {
		p.out.push(m)
		return err
	}
	return nil
}

// Publish sends a power event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	m, err := powerMessage(event, p.bootID)
	if err != nil {
		return err
	}
	return p.publish(m)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	m, err := systemMessage(event)
	if err != nil {
		return err
	}
	return p.publish(m)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	return p.out.len()
}

// Dropped returns how many buffered messages were discarded.
func (p *RealPublisher) Dropped() int {
	return p.out.droppedTotal()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
