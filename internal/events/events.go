// Package events publishes pipeline lifecycle events to a message broker.
//
// Events are informational. Publishing is best-effort: callers log
// failures and carry on.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/google/uuid"
)

// Event types.
const (
	TypeStarted         = "started"
	TypeCompleted       = "completed"
	TypeFailed          = "failed"
	TypeQueued          = "queued"
	TypeDocumentCreated = "document_created"
	TypeDelivered       = "delivered"
)

// Event is a pipeline lifecycle event.
type Event struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	CallID string         `json:"call_id"`
	Status string         `json:"status,omitempty"`
	Time   time.Time      `json:"time"`
	Data   map[string]any `json:"data,omitempty"`
}

// New returns an event with a fresh id and the current time.
func New(eventType, callID, status string, data map[string]any) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   eventType,
		CallID: callID,
		Status: status,
		Time:   time.Now().UTC(),
		Data:   data,
	}
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Open returns the publisher selected by cfg.Backend.
func Open(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Backend {
	case "", config.EventsNone:
		return Nop{}, nil
	case config.EventsNATS:
		return ConnectNATS(cfg.NATSURL, cfg.Subject)
	case config.EventsKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
