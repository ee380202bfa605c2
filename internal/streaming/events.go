package streaming

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of record change
type EventType string

const (
	EventTypeRecordCreated     EventType = "record_created"
	EventTypeRecordUpdated     EventType = "record_updated"
	EventTypeCollectionChanged EventType = "collection_changed"
)

// RecordEvent announces a change to a record collection
type RecordEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Collection string    `json:"collection"`
	RecordID   string    `json:"record_id,omitempty"`

	// Origin identifies the publishing process so it can skip its own
	// events when they come back from NATS.
	Origin string `json:"origin"`
}

// NewRecordEvent creates an event stamped with a fresh id and time
func NewRecordEvent(eventType EventType, collection, recordID string) *RecordEvent {
	return &RecordEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		Collection: collection,
		RecordID:   recordID,
	}
}
