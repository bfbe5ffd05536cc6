package mqtt

import (
	"github.com/sweeney/tinywatch/internal/logic"
)

// Message is one MQTT message as the broker receives it.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// FakePublisher stands in for RealPublisher in tests. Messages are built
// exactly as RealPublisher builds them and kept in send order.
type FakePublisher struct {
	// BootID is included in power event payloads.
	BootID string

	// Events and SystemEvents are the accepted calls, in order.
	Events       []logic.Event
	SystemEvents []SystemEvent

	// Sent is every message that reached the broker, across both topics.
	Sent []Message

	// Offline queues messages in an outbox of BufferSize until Reconnect.
	Offline    bool
	BufferSize int

	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool

	box *outbox
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the power event.
func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	m, err := powerMessage(event, f.BootID)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.send(m)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	m, err := systemMessage(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.send(m)
	return nil
}

func (f *FakePublisher) send(m bufferedMsg) {
	if f.Offline {
		if f.box == nil {
			f.box = newOutbox(f.BufferSize)
		}
		f.box.push(m)
		return
	}
	f.Sent = append(f.Sent, Message{Topic: m.topic, Payload: m.payload, QoS: m.qos, Retained: m.retained})
}

// Reconnect goes online and delivers the outbox, oldest first.
func (f *FakePublisher) Reconnect() {
	f.Offline = false
	f.Connected = true
	if f.box == nil {
		return
	}
	for _, m := range f.box.drain() {
		f.send(m)
	}
}

// Buffered returns the number of messages waiting in the outbox.
func (f *FakePublisher) Buffered() int {
	if f.box == nil {
		return 0
	}
	return f.box.len()
}

// Payloads returns the payloads sent on topic.
func (f *FakePublisher) Payloads(topic string) [][]byte {
	var out [][]byte
	for _, m := range f.Sent {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// EventTypes returns the type of every power event.
func (f *FakePublisher) EventTypes() []string {
	out := make([]string, len(f.Events))
	for i, e := range f.Events {
		out[i] = string(e.Type)
	}
	return out
}

// Buttons returns the button of every BUTTON_PRESS, in order.
func (f *FakePublisher) Buttons() []string {
	var out []string
	for _, e := range f.Events {
		if e.Type == logic.EventButtonPress {
			out = append(out, e.Button)
		}
	}
	return out
}

// Reasons returns the reason of every SLEEP_ABORT, in order.
func (f *FakePublisher) Reasons() []string {
	var out []string
	for _, e := range f.Events {
		if e.Type == logic.EventSleepAbort {
			out = append(out, e.Reason)
		}
	}
	return out
}

// States returns the power state carried by every power event.
func (f *FakePublisher) States() []logic.PowerState {
	out := make([]logic.PowerState, len(f.Events))
	for i, e := range f.Events {
		out[i] = e.State
	}
	return out
}

// SystemEventNames returns the Event field of every system event.
func (f *FakePublisher) SystemEventNames() []string {
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports Connected.
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}
