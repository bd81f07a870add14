package index

import (
	"path/filepath"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/safename"
)

const (
	eventTypeDir = "indices/eventtype"
	tagDir       = "indices/tag"
)

// Indices manages every event-type and tag Set for a single context root,
// creating files on first reference (spec §3: "Indices are created on
// first reference and grown by append").
type Indices struct {
	root string
}

// NewIndices returns an Indices rooted at contextDir.
func NewIndices(contextDir string) *Indices {
	return &Indices{root: contextDir}
}

// EventType returns the Set for a given event type.
func (ix *Indices) EventType(eventType string) *Set {
	return New(filepath.Join(ix.root, eventTypeDir, safename.EventTypeFile(eventType)))
}

// TagSet returns the Set for a given (key, value) tag pair.
func (ix *Indices) TagSet(tag domain.Tag) *Set {
	return New(filepath.Join(ix.root, tagDir, safename.TagFile(tag.Key, tag.Value)))
}

// AddEvent adds position to every index the event belongs to: its
// event-type index and each of its tag indices (spec §4.4 step 5).
func (ix *Indices) AddEvent(position int64, eventType string, tags []domain.Tag) error {
	if err := ix.EventType(eventType).Add(position); err != nil {
		return err
	}
	for _, tag := range tags {
		if err := ix.TagSet(tag).Add(position); err != nil {
			return err
		}
	}
	return nil
}
