package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalsRefreshed  EventType = "SIGNALS_REFRESHED"
	EventScanFailed        EventType = "SCAN_FAILED"
	EventAnalysisCompleted EventType = "ANALYSIS_COMPLETED"
	EventServerStarted     EventType = "SERVER_STARTED"
	EventServerStopped     EventType = "SERVER_STOPPED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Each subscriber runs in its own
// goroutine so a slow handler never blocks the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignalsRefreshed publishes a completed background scan
func (eb *EventBus) PublishSignalsRefreshed(scanID, interval string, symbols, groups int, duration time.Duration) {
	eb.Publish(Event{
		Type: EventSignalsRefreshed,
		Data: map[string]interface{}{
			"scan_id":     scanID,
			"interval":    interval,
			"symbols":     symbols,
			"groups":      groups,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishScanFailed publishes a background scan that could not run
func (eb *EventBus) PublishScanFailed(interval string, err error) {
	eb.Publish(Event{
		Type: EventScanFailed,
		Data: map[string]interface{}{
			"interval": interval,
			"error":    err.Error(),
		},
	})
}

// PublishAnalysisCompleted publishes a finished single-symbol analysis
func (eb *EventBus) PublishAnalysisCompleted(symbol, interval string, candles, matches int) {
	eb.Publish(Event{
		Type: EventAnalysisCompleted,
		Data: map[string]interface{}{
			"symbol":   symbol,
			"interval": interval,
			"candles":  candles,
			"matches":  matches,
		},
	})
}
