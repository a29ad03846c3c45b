package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChannelJokes is the channel every joke change is published on
const ChannelJokes = "jokes"

// EventType represents what happened to the entity
type EventType string

const (
	EventTypeUpdated       EventType = "updated"
	EventTypeDeleted       EventType = "deleted"
	EventTypeRestored      EventType = "restored"
	EventTypeBatchRestored EventType = "batch_restored"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeJoke EntityType = "joke"
)

// Combined event types as they appear on the wire
const (
	TypeJokeUpdated       = "joke.updated"
	TypeJokeDeleted       = "joke.deleted"
	TypeJokeRestored      = "joke.restored"
	TypeJokeBatchRestored = "joke.batch_restored"
)

// Event represents a WebSocket event message sent to clients
// Format: { seq, type, entity, payload, timestamp }
type Event struct {
	Seq       uint64      `json:"seq"`       // Per-channel sequence, stamped by the hub
	Type      string      `json:"type"`      // Combined type e.g. "joke.updated"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "joke"
	Payload   interface{} `json:"payload"`   // Full entity data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// IncomingEvent is an Event as decoded by a subscriber, with the payload left raw
type IncomingEvent struct {
	Seq       uint64          `json:"seq"`
	Type      string          `json:"type"`
	Entity    EntityType      `json:"entity"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// BatchRestoredPayload is the payload of joke.batch_restored
type BatchRestoredPayload struct {
	Restored int64 `json:"restored"`
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEvent decodes a message received from the hub
func ParseEvent(data []byte) (IncomingEvent, error) {
	var ev IncomingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return IncomingEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return IncomingEvent{}, fmt.Errorf("decode event: missing type")
	}
	return ev, nil
}

// JokeUpdated creates a joke.updated event
func JokeUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeJoke, payload)
}

// JokeDeleted creates a joke.deleted event
func JokeDeleted(payload interface{}) Event {
	return NewEvent(EventTypeDeleted, EntityTypeJoke, payload)
}

// JokeRestored creates a joke.restored event
func JokeRestored(payload interface{}) Event {
	return NewEvent(EventTypeRestored, EntityTypeJoke, payload)
}

// JokeBatchRestored creates a joke.batch_restored event
func JokeBatchRestored(restored int64) Event {
	return NewEvent(EventTypeBatchRestored, EntityTypeJoke, BatchRestoredPayload{Restored: restored})
}
