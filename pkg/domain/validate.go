package domain

import (
	"fmt"
	"strings"

	"github.com/asaskevich/govalidator"
)

// ValidateEvent checks the structural contract Append requires of every
// input event before any I/O happens (spec §4.4 step 1): a non-empty
// EventType, a non-nil Payload, and well-formed tags (non-empty key and
// value). isBlank trims surrounding whitespace and then applies
// govalidator.IsNull, so empty and whitespace-only strings are both
// rejected — the "is this string actually absent" check the teacher's form
// validators were built around, without the UI-facing ValidationResult
// apparatus that surrounded it.
func ValidateEvent(e Event) error {
	if isBlank(e.EventType) {
		return fmt.Errorf("%w: eventType must not be empty", ErrInvalidArgument)
	}
	if e.Payload == nil {
		return fmt.Errorf("%w: payload must not be nil", ErrInvalidArgument)
	}
	for i, tag := range e.Tags {
		if err := validateTag(tag); err != nil {
			return fmt.Errorf("%w: tag %d: %v", ErrInvalidArgument, i, err)
		}
	}
	return nil
}

// ValidateEvents validates a non-empty batch of events.
func ValidateEvents(events []Event) error {
	if len(events) == 0 {
		return fmt.Errorf("%w: events must not be empty", ErrInvalidArgument)
	}
	for i, e := range events {
		if err := ValidateEvent(e); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}

// isBlank reports whether s is empty or whitespace-only.
func isBlank(s string) bool {
	return govalidator.IsNull(strings.TrimSpace(s))
}

func validateTag(t Tag) error {
	if isBlank(t.Key) {
		return fmt.Errorf("tag key must not be empty")
	}
	if isBlank(t.Value) {
		return fmt.Errorf("tag %q: value must not be empty", t.Key)
	}
	return nil
}

// ValidateQuery rejects a query containing a QueryItem whose event types
// contain an empty string, or a tag with an empty key/value — malformed
// queries are an InvalidArgument, not a silently-vacuous match.
func ValidateQuery(q Query) error {
	for i, item := range q.Items {
		for _, et := range item.EventTypes {
			if isBlank(et) {
				return fmt.Errorf("%w: query item %d has an empty event type", ErrInvalidArgument, i)
			}
		}
		for _, tag := range item.Tags {
			if err := validateTag(tag); err != nil {
				return fmt.Errorf("%w: query item %d: %v", ErrInvalidArgument, i, err)
			}
		}
	}
	return nil
}
