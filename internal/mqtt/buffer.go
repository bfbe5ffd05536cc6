package mqtt

import (
	"log"
	"sync"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 100

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. When
// full the oldest message is dropped.
type outbox struct {
	mu       sync.Mutex
	msgs     []bufferedMsg
	start    int // index of the oldest message
	count    int
	dropped  int
	warnedAt int // dropped count at the last log line
}

func newOutbox(capacity int) *outbox {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &outbox{msgs: make([]bufferedMsg, capacity)}
}

func (o *outbox) push(msg bufferedMsg) {
	o.mu.Lock()
	defer o.mu.Unlock()

	capacity := len(o.msgs)
	if o.count < capacity {
		o.msgs[(o.start+o.count)%capacity] = msg
		o.count++
		return
	}

	o.msgs[o.start] = msg
	o.start = (o.start + 1) % capacity
	o.dropped++
	if o.warnedAt == 0 || o.dropped-o.warnedAt >= capacity {
		log.Printf("mqtt: outbox full (%d messages), dropped %d so far", capacity, o.dropped)
		o.warnedAt = o.dropped
	}
}

// drain returns the buffered messages oldest first and empties the outbox.
func (o *outbox) drain() []bufferedMsg {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.count == 0 {
		return nil
	}
	capacity := len(o.msgs)
	out := make([]bufferedMsg, o.count)
	for i := range out {
		out[i] = o.msgs[(o.start+i)%capacity]
	}
	o.start = 0
	o.count = 0
	o.warnedAt = 0
	return out
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

// droppedTotal returns how many messages were discarded since creation.
func (o *outbox) droppedTotal() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
