package service

import (
	"sync"

	"interlink/internal/domain"
)

// EventType defines the type of event
type EventType string

const (
	EventConnectionTransition EventType = "connection_transition"
	EventProfilesRefreshed    EventType = "profiles_refreshed"
	EventCompatibilityUpdated EventType = "compatibility_updated"
	EventOracleReloaded       EventType = "oracle_reloaded"
	EventDiscovery            EventType = "discovery"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType `json:"type"`
	Name    string    `json:"name,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events.
// Publish never blocks: a subscriber that is not ready misses the event.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes a subscriber. The channel is not closed.
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// PublishTransition publishes a connection state change. It is safe to use as a
// lifecycle observer since it never blocks.
func (eb *EventBus) PublishTransition(t domain.Transition) {
	eb.Publish(Event{Type: EventConnectionTransition, Payload: t})
}

// PublishDiscoveryEvent forwards discovery progress from the adapter registry
func (eb *EventBus) PublishDiscoveryEvent(eventType string, payload any) {
	eb.Publish(Event{Type: EventDiscovery, Name: eventType, Payload: payload})
}
