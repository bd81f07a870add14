// Package domain holds the wire-level types shared by the event store and
// the projection engine: events, tags, queries, append conditions and the
// error taxonomy. Nothing in this package touches the filesystem.
package domain

import (
	"encoding/json"
	"time"
)

// Tag is a (key, value) pair attached to an event. Multiple tags may share
// a key. Tags are the indexing dimension for cross-stream queries.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is the unit of history, as supplied to Append. It carries no
// position yet — that is assigned by the ledger.
type Event struct {
	// EventType routes the event to its payload shape and to its
	// event-type index.
	EventType string

	// Payload is the domain-declared, JSON-encodable value for EventType.
	// Use payload.Registry to register concrete shapes per event type.
	Payload any

	// Tags is an ordered sequence of (key, value) pairs. Order is
	// preserved on disk but irrelevant to matching.
	Tags []Tag
}

// Metadata augments a SequencedEvent with provenance. Timestamp is always
// present; the remaining fields are optional UUIDs.
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID *string   `json:"correlationId,omitempty"`
	CausationID   *string   `json:"causationId,omitempty"`
	OperationID   *string   `json:"operationId,omitempty"`
	UserID        *string   `json:"userId,omitempty"`
}

// SequencedEvent is an Event plus the position and metadata assigned by
// the store at append time. Immutable once persisted.
type SequencedEvent struct {
	Position int64
	Event    Event
	Metadata Metadata
}

// RawPayload is the JSON-encoded form of an event's payload as it appears
// on disk, still discriminated by EventType. eventfile.Manager fills this
// in during serialization and resolves it back through the payload
// registry during deserialization.
type RawPayload = json.RawMessage
