package domain

// QueryItem is one disjunct of a Query. EventTypes is a disjunction (empty
// means any type); Tags is a conjunction (every listed tag must be
// present). An item with both fields empty is vacuous — it matches
// nothing, keeping Query.All() the only universal matcher.
type QueryItem struct {
	EventTypes []string
	Tags       []Tag
}

// Query is a disjunction of QueryItems: the overall query matches an event
// iff any item matches it.
type Query struct {
	Items []QueryItem
}

// All returns the empty query, matching every event.
func All() Query {
	return Query{}
}

// IsAll reports whether q is the universal query.
func (q Query) IsAll() bool {
	return len(q.Items) == 0
}

// Matches is the in-memory mirror of the on-disk resolver in package
// eventstore. The two must agree on every event — see the round-trip
// property in spec §8.4. Keeping the predicate here, next to the types it
// closes over, is what lets callers (DCB decision projections, daemon
// event filtering) reuse it without touching disk.
func (q Query) Matches(e Event) bool {
	if q.IsAll() {
		return true
	}
	for _, item := range q.Items {
		if item.matches(e) {
			return true
		}
	}
	return false
}

func (item QueryItem) matches(e Event) bool {
	if len(item.EventTypes) == 0 && len(item.Tags) == 0 {
		return false
	}

	if len(item.EventTypes) > 0 {
		found := false
		for _, t := range item.EventTypes {
			if t == e.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, want := range item.Tags {
		if !hasTag(e.Tags, want) {
			return false
		}
	}
	return true
}

func hasTag(tags []Tag, want Tag) bool {
	for _, t := range tags {
		if t.Key == want.Key && t.Value == want.Value {
			return true
		}
	}
	return false
}
