// Package events is the in-process feed of startup lifecycle events. Late
// subscribers catch up from a bounded replay buffer.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event kinds published by the startup sequencer.
const (
	StartupBegin       = "startup.begin"
	StartupComplete    = "startup.complete"
	StartupFailed      = "startup.failed"
	ModuleLoaded       = "module.loaded"
	ModuleFailed       = "module.failed"
	CategoryDispatched = "category.dispatched"
)

// DefaultCapacity is the replay buffer size used when none is given.
const DefaultCapacity = 256

// Event is one entry of the feed. Seq increases by one per published event.
type Event struct {
	Seq  int64           `json:"seq"`
	Kind string          `json:"kind"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub fans events out to subscribers and keeps the most recent ones.
type Hub struct {
	mu      sync.Mutex
	seq     int64
	buf     []Event
	head    int
	n       int
	subs    map[int]chan Event
	nextSub int
}

// NewHub returns a hub replaying up to capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		buf:  make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish appends an event. data is encoded as JSON; a value that does not
// encode is published as an empty object. Subscribers that are not keeping up
// miss the event rather than block the publisher.
func (h *Hub) Publish(kind string, data any) Event {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	ev := Event{Seq: h.seq, Kind: kind, At: time.Now().UTC(), Data: payload}
	h.append(ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

func (h *Hub) append(ev Event) {
	size := len(h.buf)
	if h.n < size {
		h.buf[(h.head+h.n)%size] = ev
		h.n++
		return
	}
	h.buf[h.head] = ev
	h.head = (h.head + 1) % size
}

// Since returns buffered events with Seq greater than after, oldest first.
func (h *Hub) Since(after int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.n)
	for i := 0; i < h.n; i++ {
		ev := h.buf[(h.head+i)%len(h.buf)]
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribe registers a live subscriber. The returned cancel func closes the
// channel and may be called more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, 64)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// Last returns the sequence number of the newest event, or 0.
func (h *Hub) Last() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}
