// Package index implements the "append-only sorted-set of positions"
// abstraction shared by the event-type and tag index families (spec
// §4.3): one JSON file per event type, one per distinct (key, value) tag
// pair, each holding a sorted, deduplicated list of positions.
package index

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/majormartintibor/opossum/pkg/fsatomic"
	"golang.org/x/exp/slices"
)

type file struct {
	Positions []int64 `json:"positions"`
}

// Set is a single on-disk sorted-set-of-positions file.
type Set struct {
	path             string
	flushImmediately bool
}

// New returns a Set backed by path. Indices are never fsynced — they are
// deterministically rebuildable from event files (spec §5 durability).
func New(path string) *Set {
	return &Set{path: path, flushImmediately: false}
}

// Read loads the positions. A missing or corrupt file degrades to empty
// rather than erroring — the next Add rebuilds it (spec §4.3).
func (s *Set) Read() []int64 {
	raw, err := fsatomic.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return f.Positions
}

// Add inserts position into the set, maintaining sort order and
// uniqueness, then rewrites the file atomically.
func (s *Set) Add(position int64) error {
	positions := s.Read()
	i, found := slices.BinarySearch(positions, position)
	if found {
		return nil
	}
	positions = slices.Insert(positions, i, position)

	raw, err := json.Marshal(file{Positions: positions})
	if err != nil {
		return fmt.Errorf("index: marshal %s: %w", s.path, err)
	}
	if err := fsatomic.WriteFile(s.path, raw, s.flushImmediately); err != nil {
		return fmt.Errorf("index: write %s: %w", s.path, err)
	}
	return nil
}

// Union returns the sorted, deduplicated union of positions across sets.
func Union(sets ...[]int64) []int64 {
	var out []int64
	for _, s := range sets {
		out = append(out, s...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Intersection returns the sorted intersection of positions across sets.
// An empty input list intersects to empty (callers treat "no tags
// specified" specially before calling this — see resolver.go).
func Intersection(sets ...[]int64) []int64 {
	if len(sets) == 0 {
		return nil
	}
	result := append([]int64(nil), sets[0]...)
	for _, s := range sets[1:] {
		result = intersectSorted(result, s)
		if len(result) == 0 {
			return result
		}
	}
	return result
}

// intersectSorted performs a linear merge-intersect of two sorted,
// deduplicated slices (spec §9: "prefer in-place algorithms to avoid
// allocations in hot paths").
func intersectSorted(a, b []int64) []int64 {
	out := make([]int64, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
