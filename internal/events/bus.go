package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventTrendChanged    EventType = "TREND_CHANGED"
	EventFrameComputed   EventType = "FRAME_COMPUTED"
	EventDataDegraded    EventType = "DATA_DEGRADED"
	EventCandleClosed    EventType = "CANDLE_CLOSED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
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
	allSubs     []Subscriber
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

// Publish sends an event to all subscribers. Subscribers run in their own
// goroutines so a slow consumer never blocks the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
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

// PublishSignal publishes an entry or exit signal for a symbol
func (eb *EventBus) PublishSignal(symbol, signal string, price float64, openTime int64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"signal":    signal,
			"price":     price,
			"open_time": openTime,
		},
	})
}

// PublishTrendChanged publishes a trend regime transition
func (eb *EventBus) PublishTrendChanged(symbol, previous, current string) {
	eb.Publish(Event{
		Type: EventTrendChanged,
		Data: map[string]interface{}{
			"symbol":   symbol,
			"previous": previous,
			"current":  current,
		},
	})
}

// PublishFrameComputed publishes completion of a signal frame refresh
func (eb *EventBus) PublishFrameComputed(symbol string, rows int, fallback bool) {
	eb.Publish(Event{
		Type: EventFrameComputed,
		Data: map[string]interface{}{
			"symbol":         symbol,
			"rows":           rows,
			"trend_fallback": fallback,
		},
	})
}

// PublishDataDegraded publishes a degraded data-source condition
func (eb *EventBus) PublishDataDegraded(symbol, source, reason string) {
	eb.Publish(Event{
		Type: EventDataDegraded,
		Data: map[string]interface{}{
			"symbol": symbol,
			"source": source,
			"reason": reason,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(component, message string, err error) {
	data := map[string]interface{}{
		"component": component,
		"message":   message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{Type: EventError, Data: data})
}
