// Package events publishes catalog change notifications.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	// TypeServiceCreated is emitted after a new service is saved.
	TypeServiceCreated = "service.created"
	// TypeServiceUpdated is emitted after a service update is saved.
	TypeServiceUpdated = "service.updated"
	// TypeServiceDeleted is emitted after a service is removed.
	TypeServiceDeleted = "service.deleted"
	// TypeImageDeleted is emitted after a single image is removed from a service.
	TypeImageDeleted = "service.image-deleted"

	eventSource = "servicesite"
)

// Event is the envelope published for every catalog change.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Source  string    `json:"source"`
	Subject string    `json:"subject"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data,omitempty"`
}

// NewEvent builds an envelope for the service identified by subject.
func NewEvent(eventType, subject string, data any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Source:  eventSource,
		Subject: subject,
		Time:    time.Now().UTC(),
		Data:    data,
	}
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NoopPublisher drops every event. It is used when no broker is configured.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() error { return nil }
