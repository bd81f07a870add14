// Package projectionstore persists per-key projection state and the tag
// indices over it (spec §4.6): one file per instance, plus optional tag
// indices maintained by diffing the previous and current tag sets on every
// save.
package projectionstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/eventfile"
	"github.com/majormartintibor/opossum/pkg/fsatomic"
	"github.com/majormartintibor/opossum/pkg/safename"
	"golang.org/x/exp/slices"
)

const indicesDir = "indices"

// parallelThreshold mirrors eventfile.Manager's batch-read fan-out
// threshold (spec §4.6 "getAll(): parallel above threshold").
const parallelThreshold = 10

type instanceFile[State any] struct {
	Data     State            `json:"data"`
	Metadata instanceMetadata `json:"metadata"`
}

type instanceMetadata struct {
	Tags []domain.Tag `json:"tags,omitempty"`
}

type tagIndexFile struct {
	Keys []string `json:"keys"`
}

// Store is a single projection's instance files and tag indices, rooted at
// projections/{name} under a context directory.
type Store[State any] struct {
	root        string
	tagProvider func(State) []domain.Tag
	locks       *keyedMutex
}

// New returns a Store rooted at contextDir/projections/{name}. tagProvider
// may be nil, meaning this projection keeps no tag indices.
func New[State any](contextDir, name string, tagProvider func(State) []domain.Tag) *Store[State] {
	return &Store[State]{
		root:        filepath.Join(contextDir, "projections", name),
		tagProvider: tagProvider,
		locks:       newKeyedMutex(),
	}
}

func (s *Store[State]) instancePath(key string) string {
	return filepath.Join(s.root, safename.Escape(key)+".json")
}

func (s *Store[State]) tagIndexPath(tag domain.Tag) string {
	return filepath.Join(s.root, indicesDir, safename.Escape(tag.Key)+"_"+safename.Escape(tag.Value)+".json")
}

// Get loads the instance for key. found is false when no instance file
// exists, which is not an error (spec §4.6: "returns null if absent").
func (s *Store[State]) Get(key string) (state State, found bool, err error) {
	raw, err := fsatomic.ReadFile(s.instancePath(key))
	if err != nil {
		var zero State
		return zero, false, nil
	}
	var f instanceFile[State]
	if err := json.Unmarshal(raw, &f); err != nil {
		var zero State
		return zero, false, &domain.StorageCorruptionError{Path: s.instancePath(key), Cause: err}
	}
	return f.Data, true, nil
}

// GetAll reads every instance file under this projection, fanning out
// above parallelThreshold the same way eventfile.Manager.ReadMany does.
func (s *Store[State]) GetAll() ([]State, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		keys = append(keys, e.Name())
	}
	if len(keys) == 0 {
		return nil, nil
	}

	states := make([]State, len(keys))
	errs := make([]error, len(keys))

	load := func(i int) {
		raw, err := fsatomic.ReadFile(filepath.Join(s.root, keys[i]))
		if err != nil {
			errs[i] = err
			return
		}
		var f instanceFile[State]
		if err := json.Unmarshal(raw, &f); err != nil {
			errs[i] = err
			return
		}
		states[i] = f.Data
	}

	if len(keys) < parallelThreshold {
		for i := range keys {
			load(i)
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, eventfile.FanoutWidth())
		for i := range keys {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				load(i)
			}(i)
		}
		wg.Wait()
	}

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("projectionstore: getAll: %w", err)
		}
	}
	return states, nil
}

// QueryByTag returns the instance keys carrying tag. A missing index
// returns an empty result, not an error (spec §4.6).
func (s *Store[State]) QueryByTag(tag domain.Tag) ([]string, error) {
	raw, err := fsatomic.ReadFile(s.tagIndexPath(tag))
	if err != nil {
		return nil, nil
	}
	var f tagIndexFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, nil
	}
	return f.Keys, nil
}

// QueryByTags returns the keys present in every listed tag's index (AND
// semantics). Any missing index makes the whole query return empty.
func (s *Store[State]) QueryByTags(tags []domain.Tag) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	result, err := s.QueryByTag(tags[0])
	if err != nil {
		return nil, err
	}
	for _, t := range tags[1:] {
		if len(result) == 0 {
			return nil, nil
		}
		next, err := s.QueryByTag(t)
		if err != nil {
			return nil, err
		}
		result = intersectStrings(result, next)
	}
	return result, nil
}

// Save persists state for key and reconciles the tag indices: keys are
// removed from tags present on the prior state but not the new one, and
// added to tags newly present, all within the per-key lock (spec §4.6).
func (s *Store[State]) Save(key string, state State) error {
	return s.locks.withLock(key, func() error {
		var oldTags []domain.Tag
		if raw, err := fsatomic.ReadFile(s.instancePath(key)); err == nil {
			var old instanceFile[State]
			if json.Unmarshal(raw, &old) == nil {
				oldTags = old.Metadata.Tags
			}
		}

		var newTags []domain.Tag
		if s.tagProvider != nil {
			newTags = s.tagProvider(state)
		}

		f := instanceFile[State]{Data: state, Metadata: instanceMetadata{Tags: newTags}}
		raw, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("projectionstore: marshal %q: %w", key, err)
		}
		if err := fsatomic.WriteFile(s.instancePath(key), raw, false); err != nil {
			return fmt.Errorf("projectionstore: write %q: %w", key, err)
		}

		return s.reconcileTags(key, oldTags, newTags)
	})
}

// Reset removes every instance file and tag index under this projection,
// used by a full rebuild before replaying events from position 1
// (spec §4.7: "reinitialise the projection store"). A fresh per-key lock
// table is installed so a Reset racing with an in-flight Save cannot leave
// a stale lock pointing at removed state.
func (s *Store[State]) Reset() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("projectionstore: reset %q: %w", s.root, err)
	}
	s.locks = newKeyedMutex()
	return nil
}

// Delete removes the instance file for key and removes key from every tag
// index it was a member of.
func (s *Store[State]) Delete(key string) error {
	return s.locks.withLock(key, func() error {
		var oldTags []domain.Tag
		if raw, err := fsatomic.ReadFile(s.instancePath(key)); err == nil {
			var old instanceFile[State]
			if json.Unmarshal(raw, &old) == nil {
				oldTags = old.Metadata.Tags
			}
		}

		if err := os.Remove(s.instancePath(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("projectionstore: delete %q: %w", key, err)
		}

		return s.reconcileTags(key, oldTags, nil)
	})
}

// reconcileTags diffs oldTags against newTags and applies the resulting
// removals/additions to each affected tag index file.
func (s *Store[State]) reconcileTags(key string, oldTags, newTags []domain.Tag) error {
	for _, t := range oldTags {
		if !containsTag(newTags, t) {
			if err := s.removeFromTagIndex(t, key); err != nil {
				return err
			}
		}
	}
	for _, t := range newTags {
		if !containsTag(oldTags, t) {
			if err := s.addToTagIndex(t, key); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store[State]) addToTagIndex(tag domain.Tag, key string) error {
	path := s.tagIndexPath(tag)
	keys, _ := s.QueryByTag(tag)
	if slices.Contains(keys, key) {
		return nil
	}
	keys = append(keys, key)
	slices.Sort(keys)
	return writeTagIndex(path, keys)
}

func (s *Store[State]) removeFromTagIndex(tag domain.Tag, key string) error {
	path := s.tagIndexPath(tag)
	keys, _ := s.QueryByTag(tag)
	i := slices.Index(keys, key)
	if i < 0 {
		return nil
	}
	keys = slices.Delete(keys, i, i+1)
	return writeTagIndex(path, keys)
}

func writeTagIndex(path string, keys []string) error {
	raw, err := json.Marshal(tagIndexFile{Keys: keys})
	if err != nil {
		return fmt.Errorf("projectionstore: marshal tag index: %w", err)
	}
	return fsatomic.WriteFile(path, raw, false)
}

func containsTag(tags []domain.Tag, want domain.Tag) bool {
	for _, t := range tags {
		if t.Key == want.Key && t.Value == want.Value {
			return true
		}
	}
	return false
}

func intersectStrings(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

