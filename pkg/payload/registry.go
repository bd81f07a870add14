// Package payload implements the "eventType → concrete payload shape"
// registry that spec §3 and §4.2 require: events are polymorphic over a
// set of domain-declared shapes discriminated by eventType, and the
// on-disk format must round-trip exactly. This generalizes the teacher's
// protobuf-message registry (one concrete Go message per EventType string)
// to plain JSON-tagged structs, since the wire format here is JSON, not
// protobuf (see DESIGN.md).
package payload

import (
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
)

// Registry maps event types to the concrete Go type that decodes their
// JSON payload. Safe for concurrent use; registration is expected at
// startup, lookups happen on every read.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]func() any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]func() any)}
}

// Register associates eventType with the payload shape T. Registering the
// same eventType twice overwrites the previous association — callers
// should register once, at startup.
func Register[T any](r *Registry, eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[eventType] = func() any { return new(T) }
}

// Marshal encodes a payload to its on-disk JSON representation. The
// concrete type is not required to be registered to marshal — only to
// unmarshal — since encoding/json only needs the value, not the type
// name, to produce bytes.
func Marshal(payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return raw, nil
}

// Unmarshal decodes raw into the registered shape for eventType. Refusing
// unknown event types (rather than returning a bare map[string]any) is
// what keeps type fidelity across a round trip — spec §9 calls this out
// explicitly.
func (r *Registry) Unmarshal(eventType string, raw json.RawMessage) (any, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[eventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("payload: no shape registered for event type %q", eventType)
	}
	value := ctor()
	if err := json.Unmarshal(raw, value); err != nil {
		return nil, fmt.Errorf("payload: unmarshal %q: %w", eventType, err)
	}
	return value, nil
}

// Has reports whether eventType has a registered shape.
func (r *Registry) Has(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[eventType]
	return ok
}

// EventTypes returns every registered event type, in no particular order.
// Useful for a startup self-check or a diagnostics endpoint that wants to
// know what a registry can deserialize.
func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Keys(r.ctors)
}
