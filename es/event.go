package es

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Event is a domain event waiting to be appended to a stream.
// The store assigns its aggregate version and global position.
type Event struct {
	// CreatedAt is when the event was created
	CreatedAt time.Time

	// AggregateType and AggregateID identify the stream the event belongs to
	AggregateType string
	AggregateID   string

	// EventType identifies the type of event
	EventType string

	// Payload contains the event data in any serialization format
	Payload []byte

	// Metadata contains additional event metadata as JSON
	Metadata []byte

	// EventVersion is the schema version of this event type
	EventVersion int

	// TraceID, CorrelationID and CausationID are optional tracing identifiers
	TraceID       sql.NullString
	CorrelationID sql.NullString
	CausationID   sql.NullString

	// EventID is a unique identifier for this event
	EventID uuid.UUID
}

// PersistedEvent is an event that has been committed to a store.
// Persisted events are the items delivered to subscribers.
type PersistedEvent struct {
	CreatedAt     time.Time
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Metadata      []byte
	EventVersion  int
	TraceID       sql.NullString
	CorrelationID sql.NullString
	CausationID   sql.NullString
	EventID       uuid.UUID

	// GlobalPosition orders the event across all streams of a store
	GlobalPosition int64

	// AggregateVersion orders the event within its stream, starting at 1
	AggregateVersion int64
}

// StreamKey returns the partition key of the event's stream. Events with the
// same key are delivered to subscribers in aggregate version order.
func (e *PersistedEvent) StreamKey() string {
	return StreamKey(e.AggregateType, e.AggregateID)
}

// StreamKey joins an aggregate type and id into a partition key.
func StreamKey(aggregateType, aggregateID string) string {
	return aggregateType + "/" + aggregateID
}

// Persist returns the persisted form of e at the given positions.
func (e *Event) Persist(globalPosition, aggregateVersion int64) PersistedEvent {
	return PersistedEvent{
		CreatedAt:        e.CreatedAt,
		AggregateType:    e.AggregateType,
		AggregateID:      e.AggregateID,
		EventType:        e.EventType,
		Payload:          e.Payload,
		Metadata:         e.Metadata,
		EventVersion:     e.EventVersion,
		TraceID:          e.TraceID,
		CorrelationID:    e.CorrelationID,
		CausationID:      e.CausationID,
		EventID:          e.EventID,
		GlobalPosition:   globalPosition,
		AggregateVersion: aggregateVersion,
	}
}

// Stream is the ordered history of one aggregate.
type Stream struct {
	AggregateType string
	AggregateID   string
	Events        []PersistedEvent
}

// Version returns the aggregate version of the last event, or 0.
func (s Stream) Version() int64 {
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[len(s.Events)-1].AggregateVersion
}

// IsEmpty reports whether the stream has no events.
func (s Stream) IsEmpty() bool {
	return len(s.Events) == 0
}

// Len returns the number of events in the stream.
func (s Stream) Len() int {
	return len(s.Events)
}

// AppendResult is what a store returns for a successful append.
type AppendResult struct {
	Events          []PersistedEvent
	GlobalPositions []int64
}

// FromVersion returns the aggregate version before the append.
func (r AppendResult) FromVersion() int64 {
	if len(r.Events) == 0 {
		return 0
	}
	return r.Events[0].AggregateVersion - 1
}

// ToVersion returns the aggregate version after the append.
func (r AppendResult) ToVersion() int64 {
	if len(r.Events) == 0 {
		return 0
	}
	return r.Events[len(r.Events)-1].AggregateVersion
}
