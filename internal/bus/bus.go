// Package bus provides a pub/sub event bus for pipeline notifications.
package bus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Topics published by the server.
const (
	TopicQueryAnswered       = "query.answered"
	TopicEvaluationCompleted = "evaluation.completed"
	TopicDocumentIngested    = "document.ingested"
)

// Event is a message published on the bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Handler processes an event from a topic.
type Handler func(ctx context.Context, event Event) error

// Bus is the event bus interface.
type Bus interface {
	// Publish publishes an event to a topic. Publishing to a topic with no
	// subscribers is not an error.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe registers a handler for events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close shuts down the bus, draining in-flight handlers.
	Close() error
}

// NewEvent creates an event with the given type and payload, stamped now.
func NewEvent(eventType, source string, payload map[string]interface{}) Event {
	return Event{
		ID:        newEventID(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

func newEventID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}
