package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	defaultBacklog   = 100
	subscriberBuffer = 64
)

// Publisher is the write side of a Hub.
type Publisher interface {
	Publish(eventType string, data any)
}

type subscriber struct {
	ch chan Event
}

// Hub is an in-process broadcaster. Publish never blocks: a subscriber whose
// buffer is full misses the event and can recover it from the backlog by
// reconnecting with its last seen ID.
type Hub struct {
	mu      sync.Mutex
	lastID  int64
	backlog []Event
	limit   int
	subs    map[*subscriber]struct{}
	dropped int64
	now     func() time.Time
}

var _ Publisher = (*Hub)(nil)

// NewHub keeps up to backlog events for replay.
func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	return &Hub{
		limit:   backlog,
		backlog: make([]Event, 0, backlog),
		subs:    make(map[*subscriber]struct{}),
		now:     time.Now,
	}
}

// Publish marshals data and delivers it. A nil or unmarshalable payload is
// sent as an empty object.
func (h *Hub) Publish(eventType string, data any) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, At: h.now().UTC(), Data: payload}

	if len(h.backlog) == h.limit {
		copy(h.backlog, h.backlog[1:])
		h.backlog = h.backlog[:h.limit-1]
	}
	h.backlog = append(h.backlog, ev)

	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			h.dropped++
		}
	}
}

// Follow atomically returns the backlog after lastID and a live channel for
// everything published afterwards, so no event falls between the two.
// lastID 0 replays the whole backlog. The returned func unsubscribes and
// closes the channel; calling it more than once is safe.
func (h *Hub) Follow(lastID int64) ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := h.sinceLocked(lastID)
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}
	h.subs[s] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			close(s.ch)
			h.mu.Unlock()
		})
	}
	return replay, s.ch, cancel
}

// Subscribe registers a live listener without replay.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	last := h.lastID
	h.mu.Unlock()
	_, ch, cancel := h.Follow(last)
	return ch, cancel
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts deliveries skipped because a subscriber was full.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// SnapshotSince returns backlog events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinceLocked(lastID)
}

func (h *Hub) sinceLocked(lastID int64) []Event {
	out := make([]Event, 0, len(h.backlog))
	for _, ev := range h.backlog {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}
