package notify

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// DefaultBuffer is used when Subscribe is given a non-positive buffer size.
const DefaultBuffer = 64

// Subscription receives events in publish order on C. C is closed when the
// subscription is closed, when the hub is closed, or when the subscriber fell
// too far behind and was evicted.
type Subscription struct {
	ID uuid.UUID
	C  <-chan Event

	ch  chan Event
	hub *Hub
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.ID)
}

// Hub delivers events to every subscriber without ever blocking the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]*Subscription
	order  []uuid.UUID
	seq    uint64
	closed bool

	clock clockwork.Clock
	log   logrus.FieldLogger
}

// NewHub creates a hub stamping events with clock.
func NewHub(clock clockwork.Clock, log logrus.FieldLogger) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		subs:  make(map[uuid.UUID]*Subscription),
		clock: clock,
		log:   log,
	}
}

// Subscribe registers a subscriber with a channel of the given capacity.
// Subscribing to a closed hub returns an already-closed subscription.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{ID: uuid.New(), C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub.ID] = sub
	h.order = append(h.order, sub.ID)
	return sub
}

// Publish stamps e and hands it to every subscriber. A subscriber whose buffer
// is full is evicted. It returns the stamped event.
func (h *Hub) Publish(e Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	e.ID = uuid.New()
	e.Seq = h.seq
	e.Timestamp = h.clock.Now()

	if h.closed {
		return e
	}

	for _, id := range append([]uuid.UUID(nil), h.order...) {
		sub := h.subs[id]
		select {
		case sub.ch <- e:
		default:
			h.log.WithFields(logrus.Fields{
				"subscription_id": id,
				"room_id":         e.RoomID,
				"event":           e.Type,
				"seq":             e.Seq,
			}).Warn("subscriber buffer full, evicting")
			h.removeLocked(id)
		}
	}
	return e
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscription. Later publishes are stamped but dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, id := range append([]uuid.UUID(nil), h.order...) {
		h.removeLocked(id)
	}
}

func (h *Hub) unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id uuid.UUID) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	for i, other := range h.order {
		if other == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	close(sub.ch)
}
