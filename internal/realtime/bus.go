package realtime

import (
	"sync"
	"time"
)

// Event types delivered over the notification stream.
const (
	EventMessageReceived   = "message_received"
	EventApplicationUpdate = "application_update"
	EventPaymentUpdate     = "payment_update"
	EventListingReviewed   = "listing_reviewed"
)

// Event is one notification addressed to a user.
type Event struct {
	Type    string      `json:"type"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

// Bus fans events out to per-user subscriber channels. Sends never block:
// a subscriber that falls behind loses events rather than stalling the
// publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan Event)}
}

// Subscribe returns a channel receiving the user's events.
func (b *Bus) Subscribe(userID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 16)
	b.subs[userID] = append(b.subs[userID], ch)
	return ch
}

// Unsubscribe removes a channel from the user's subscribers and closes it.
func (b *Bus) Unsubscribe(userID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[userID]
	for i, s := range subs {
		if s == ch {
			b.subs[userID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(b.subs[userID]) == 0 {
		delete(b.subs, userID)
	}
}

// Publish delivers an event to every subscriber of the user.
func (b *Bus) Publish(userID, eventType string, payload interface{}) {
	b.mu.RLock()
	subs := make([]chan Event, len(b.subs[userID]))
	copy(subs, b.subs[userID])
	b.mu.RUnlock()

	ev := Event{Type: eventType, At: time.Now(), Payload: payload}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
