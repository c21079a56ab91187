package app

import (
	"sync"

	"live-quiz-service/internal/domain"

	"github.com/rs/zerolog/log"
)

// Topic identifies one audience of one room.
type Topic struct {
	RoomID   string
	Audience domain.Audience
}

// Hub fans events out to per-topic subscribers. Delivery is at-most-once: a
// subscriber whose buffer is full loses its oldest pending event.
type Hub struct {
	buffer int

	mu     sync.RWMutex
	topics map[Topic]map[chan domain.Event]struct{}
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{
		buffer: buffer,
		topics: make(map[Topic]map[chan domain.Event]struct{}),
	}
}

// Subscribe returns a channel receiving events published to topic.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(topic Topic) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, h.buffer)

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		h.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			subs := h.topics[topic]
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		})
	}
	return ch, cancel
}

// Publish delivers ev to every current subscriber of topic without blocking.
func (h *Hub) Publish(topic Topic, ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.topics[topic] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
			log.Debug().Str("room", topic.RoomID).Str("audience", string(topic.Audience)).
				Str("event", string(ev.Type)).Msg("subscriber buffer full, dropped oldest event")
		}
	}
}

// PublishBoth sends one event shape to each audience of a room.
func (h *Hub) PublishBoth(roomID string, control, participant domain.Event) {
	h.Publish(Topic{RoomID: roomID, Audience: domain.AudienceControl}, control)
	h.Publish(Topic{RoomID: roomID, Audience: domain.AudienceParticipant}, participant)
}

// Subscribers counts the live subscribers of topic.
func (h *Hub) Subscribers(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
