package eventstore

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/index"
)

// resolve implements spec §4.5: the on-disk mirror of domain.Query.Matches.
// The two must agree on every event (spec §8.4) — resolve is exercised
// against Matches directly in store_test.go.
func resolve(eventsDir string, indices *index.Indices, q domain.Query) []int64 {
	if q.IsAll() {
		return allPositions(eventsDir)
	}

	var unioned [][]int64
	for _, item := range q.Items {
		if positions, ok := resolveItem(indices, item); ok {
			unioned = append(unioned, positions)
		}
	}
	return index.Union(unioned...)
}

// resolveItem mirrors QueryItem.matches: type-set union, tag-set
// intersection, then combine. An item with neither field set is vacuous
// and contributes nothing (ok=false).
func resolveItem(indices *index.Indices, item domain.QueryItem) (positions []int64, ok bool) {
	hasTypes := len(item.EventTypes) > 0
	hasTags := len(item.Tags) > 0

	if !hasTypes && !hasTags {
		return nil, false
	}

	var typeSet []int64
	if hasTypes {
		sets := make([][]int64, len(item.EventTypes))
		for i, et := range item.EventTypes {
			sets[i] = indices.EventType(et).Read()
		}
		typeSet = index.Union(sets...)
	}

	var tagSet []int64
	if hasTags {
		sets := make([][]int64, len(item.Tags))
		for i, tag := range item.Tags {
			sets[i] = indices.TagSet(tag).Read()
		}
		tagSet = index.Intersection(sets...)
	}

	switch {
	case hasTypes && hasTags:
		return index.Intersection(typeSet, tagSet), true
	case hasTypes:
		return typeSet, true
	default:
		return tagSet, true
	}
}

// allPositions enumerates the events directory rather than trusting the
// ledger alone, so Query.All() is correct even immediately after a crash
// recovery scan (spec §4.5: "enumerate event files").
func allPositions(eventsDir string) []int64 {
	entries, err := os.ReadDir(eventsDir)
	if err != nil {
		return nil
	}
	var positions []int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") || strings.Contains(name, ".tmp.") {
			continue
		}
		base := strings.TrimSuffix(filepath.Base(name), ".json")
		p, err := strconv.ParseInt(base, 10, 64)
		if err != nil {
			continue
		}
		positions = append(positions, p)
	}
	sortInt64s(positions)
	return positions
}

func sortInt64s(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
