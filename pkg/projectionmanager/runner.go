package projectionmanager

import (
	"fmt"
	"reflect"
	"time"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/projectionstore"
)

// projectionRunner closes over one Projection[State] definition, its
// dedicated store, and the shared checkpoint store, implementing the
// type-erased registration interface Manager holds.
type projectionRunner[State any] struct {
	def         domain.Projection[State]
	store       *projectionstore.Store[State]
	source      Source
	checkpoints *checkpointStore
}

func (r *projectionRunner[State]) Name() string {
	return r.def.ProjectionName
}

// update implements the incremental update cycle of spec §4.7: read events
// past the checkpoint up to batchSize, fold them in position order, save or
// delete the affected instance, then persist the new checkpoint once.
func (r *projectionRunner[State]) update(batchSize int) (processed int, err error) {
	checkpoint, _, err := r.checkpoints.Load(r.def.ProjectionName)
	if err != nil {
		return 0, err
	}

	lastProcessed := checkpoint.LastProcessedPosition
	total := checkpoint.TotalEventsProcessed

	events, err := r.source.ReadAfter(r.def.EventTypes, lastProcessed, batchSize)
	if err != nil {
		return 0, err
	}

	for _, event := range events {
		if err := r.applyOne(event); err != nil {
			return processed, fmt.Errorf("projectionmanager: apply event at position %d to %q: %w", event.Position, r.def.ProjectionName, err)
		}

		lastProcessed = event.Position
		total++
		processed++
	}

	if processed == 0 {
		return 0, nil
	}

	return processed, r.checkpoints.Save(domain.Checkpoint{
		ProjectionName:        r.def.ProjectionName,
		LastProcessedPosition: lastProcessed,
		LastUpdated:           time.Now(),
		TotalEventsProcessed:  total,
	})
}

// applyOne folds a single event into its keyed instance, saving or deleting
// depending on the fold's result (spec §4.7 step 3).
func (r *projectionRunner[State]) applyOne(event domain.SequencedEvent) error {
	key, ok := r.def.KeySelector(event)
	if !ok {
		return nil
	}

	state, found, err := r.store.Get(key)
	if err != nil {
		return err
	}

	newState := r.def.Apply(state, event)

	if isNilState(newState) {
		if !found {
			return nil
		}
		return r.store.Delete(key)
	}
	return r.store.Save(key, newState)
}

// rebuild implements spec §4.7's full rebuild: drop all existing instances
// and indices, replay the entire matching event history in order, then set
// the checkpoint to the highest position consumed.
func (r *projectionRunner[State]) rebuild() error {
	if err := r.store.Reset(); err != nil {
		return err
	}
	if err := r.checkpoints.Delete(r.def.ProjectionName); err != nil {
		return err
	}

	query := domain.Query{Items: []domain.QueryItem{{EventTypes: r.def.EventTypes}}}
	events, err := r.source.Read(query, domain.Ascending)
	if err != nil {
		return err
	}

	var lastProcessed int64
	var total uint64
	for _, event := range events {
		if err := r.applyOne(event); err != nil {
			return fmt.Errorf("projectionmanager: rebuild apply at position %d: %w", event.Position, err)
		}
		lastProcessed = event.Position
		total++
	}

	return r.checkpoints.Save(domain.Checkpoint{
		ProjectionName:        r.def.ProjectionName,
		LastProcessedPosition: lastProcessed,
		LastUpdated:           time.Now(),
		TotalEventsProcessed:  total,
	})
}

// isNilState reports whether a fold's returned state is nil — the
// projection's "delete this instance" signal (spec §3: "Returning null
// deletes the instance"). State is expected to be a pointer, map, or
// interface type for projections that ever delete; a plain value type
// never satisfies this and such a projection simply never deletes.
func isNilState[State any](s State) bool {
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Interface, reflect.Slice, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return false
	}
}
