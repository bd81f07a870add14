package domain

import "time"

// Projection is a pure fold from a sequenced event into per-key state.
// State is typically a pointer type; Apply returning nil deletes the
// instance for that key.
type Projection[State any] struct {
	// ProjectionName uniquely identifies the projection; it determines
	// directory names under projections/.
	ProjectionName string

	// EventTypes is the set of event types the manager reads on this
	// projection's behalf.
	EventTypes []string

	// KeySelector derives the instance key from an event. Returning
	// false skips the event for this projection.
	KeySelector func(SequencedEvent) (key string, ok bool)

	// Apply folds an event into the (possibly nil) current state.
	// Returning nil deletes the instance. Must be deterministic and
	// side-effect free — the manager never retries a failed Apply
	// differently.
	Apply func(state State, event SequencedEvent) State

	// TagProvider optionally derives the tag set to index a piece of
	// state under. Nil means the projection keeps no tag indices.
	TagProvider func(state State) []Tag
}

// Checkpoint durably records how far a projection has been folded.
type Checkpoint struct {
	ProjectionName       string    `json:"projectionName"`
	LastProcessedPosition int64    `json:"lastProcessedPosition"`
	LastUpdated          time.Time `json:"lastUpdated"`
	TotalEventsProcessed  uint64   `json:"totalEventsProcessed"`
}
