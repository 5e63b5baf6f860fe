// Package delivery routes committed events to connected recipients through
// rooms. Every connected user occupies a personal room named after their
// username plus zero or more group rooms.
//
// Ordering: publishing holds the room lock through enqueue to every
// subscriber, so events targeting one room arrive FIFO in commit order. No
// ordering is guaranteed across rooms. Enqueue never blocks: a full
// subscriber queue drops the event and bumps a counter — persisted state
// stays retrievable from the store regardless of live delivery.
package delivery

import (
	"sync"

	"chabrush/pkg/logger"
	"chabrush/pkg/models"
	"chabrush/pkg/telemetry"
)

type room struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// Subscriber is one connected client draining its event queue.
type Subscriber struct {
	User string

	ch    chan Event
	hub   *Hub
	mu    sync.Mutex
	rooms map[string]struct{}
	done  bool
}

// Events returns the queue the transport drains to the client.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Hub is the room registry shared by all transports.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	buffer int
}

// NewHub creates a Hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{rooms: make(map[string]*room), buffer: buffer}
}

func (h *Hub) room(name string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[name]; ok {
		return r
	}
	r := &room{subs: make(map[*Subscriber]struct{})}
	h.rooms[name] = r
	return r
}

// Subscribe registers a connected user and joins their personal room.
func (h *Hub) Subscribe(user string) *Subscriber {
	s := &Subscriber{
		User:  user,
		ch:    make(chan Event, h.buffer),
		hub:   h,
		rooms: make(map[string]struct{}),
	}
	h.Join(s, user)
	telemetry.Subscribers.Inc()
	logger.Debug("feed_subscribed", "user", user)
	return s
}

// Unsubscribe leaves all rooms and closes the event queue.
func (h *Hub) Unsubscribe(s *Subscriber) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	joined := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		joined = append(joined, name)
	}
	s.mu.Unlock()

	for _, name := range joined {
		h.Leave(s, name)
	}
	close(s.ch)
	telemetry.Subscribers.Dec()
	logger.Debug("feed_unsubscribed", "user", s.User)
}

// Join adds the subscriber to a room. Membership-management signal from the
// transport layer, not a business operation.
func (h *Hub) Join(s *Subscriber, name string) {
	r := h.room(name)
	r.mu.Lock()
	r.subs[s] = struct{}{}
	r.mu.Unlock()
	s.mu.Lock()
	s.rooms[name] = struct{}{}
	s.mu.Unlock()
}

// Leave removes the subscriber from a room.
func (h *Hub) Leave(s *Subscriber, name string) {
	h.mu.RLock()
	r, ok := h.rooms[name]
	h.mu.RUnlock()
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.subs, s)
	r.mu.Unlock()
	s.mu.Lock()
	delete(s.rooms, name)
	s.mu.Unlock()
}

// Publish enqueues ev to every subscriber of the room.
func (h *Hub) Publish(roomName string, ev Event) {
	h.publish(roomName, ev, nil)
}

// PublishExcept enqueues ev to every subscriber of the room except skip.
// Used for typing indicators so the typist doesn't hear their own echo.
func (h *Hub) PublishExcept(roomName string, ev Event, skip *Subscriber) {
	h.publish(roomName, ev, skip)
}

func (h *Hub) publish(roomName string, ev Event, skip *Subscriber) {
	telemetry.EventsPublished.WithLabelValues(ev.Type).Inc()
	h.mu.RLock()
	r, ok := h.rooms[roomName]
	h.mu.RUnlock()
	if !ok {
		// Nobody connected; persisted events stay retrievable via the store.
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.subs {
		if s == skip {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			telemetry.DeliveriesDropped.Inc()
			logger.Warn("delivery_dropped", "room", roomName, "user", s.User, "type", ev.Type)
		}
	}
}

// NotifyDirectMessage fans a committed direct-message event out to the
// sender's room (echo) and the recipient's room.
func (h *Hub) NotifyDirectMessage(evType string, m models.Message) {
	ev := Event{Type: evType, Message: &m}
	h.Publish(m.Sender, ev)
	if m.Recipient != "" && m.Recipient != m.Sender {
		h.Publish(m.Recipient, ev)
	}
}

// NotifyGroupMessage fans a committed group event out to the personal room
// of every member in the post-commit membership snapshot, sender included.
func (h *Hub) NotifyGroupMessage(evType string, m models.Message, members []string) {
	ev := Event{Type: evType, Message: &m, Group: m.Group}
	for _, member := range members {
		h.Publish(member, ev)
	}
}

// NotifyCall pushes a call event to both parties' rooms.
func (h *Hub) NotifyCall(evType string, c models.Call) {
	ev := Event{Type: evType, Call: &c}
	h.Publish(c.Caller, ev)
	h.Publish(c.Callee, ev)
}
