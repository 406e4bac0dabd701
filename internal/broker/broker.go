// Package broker fans delivered nudges out to live client sessions.
// Persistence is the durable truth; the broker is best-effort, at-most-once.
package broker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/metrics"
)

// Event is one live nudge notification pushed to a subscribed session.
type Event struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CTA       string    `json:"cta,omitempty"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

const subscriberBuffer = 8

// Broker is an in-process per-user fan-out hub. Sends never block: a full or
// absent subscriber drops the event.
type Broker struct {
	log *zap.Logger

	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	nextID int
}

// New creates an empty broker.
func New(log *zap.Logger) *Broker {
	return &Broker{
		log:  log,
		subs: make(map[string]map[int]chan Event),
	}
}

// Subscribe registers a session for a user's live events. The returned
// cancel must be called when the session ends.
func (b *Broker) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan Event)
	}
	b.subs[userID][id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sessions, ok := b.subs[userID]; ok {
			delete(sessions, id)
			if len(sessions) == 0 {
				delete(b.subs, userID)
			}
		}
		b.mu.Unlock()
	}

	return ch, cancel
}

// Publish pushes an event to all of a user's sessions and returns how many
// received it.
func (b *Broker) Publish(userID string, event Event) int {
	b.mu.RLock()
	sessions := b.subs[userID]
	channels := make([]chan Event, 0, len(sessions))
	for _, ch := range sessions {
		channels = append(channels, ch)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, ch := range channels {
		select {
		case ch <- event:
			delivered++
		default:
			metrics.LiveEventsDropped.Inc()
			b.log.Warn("Dropped live event for slow subscriber",
				zap.String("user_id", userID))
		}
	}

	if len(channels) == 0 {
		metrics.LiveEventsDropped.Inc()
	}

	return delivered
}
