package eventstore_test

import (
	"errors"
	"testing"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/eventstore"
	"github.com/majormartintibor/opossum/pkg/payload"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// CourseCapacityChanged exercises the polymorphic payload registry with a
// non-trivial numeric type, the way a tuition or pricing event would carry
// a decimal amount on the wire.
type CourseCapacityChanged struct {
	CourseID    string          `json:"courseId"`
	NewCapacity decimal.Decimal `json:"newCapacity"`
}

type StudentRegistered struct {
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId"`
}

func newRegistry() *payload.Registry {
	r := payload.NewRegistry()
	payload.Register[CourseCapacityChanged](r, "CourseCapacityChanged")
	payload.Register[StudentRegistered](r, "StudentRegistered")
	return r
}

func newStore(t *testing.T) *eventstore.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := eventstore.New(dir, newRegistry(), eventstore.WithFlushEventsImmediately(false))
	require.NoError(t, err)
	return s
}

func TestAppendAssignsSequentialPositions(t *testing.T) {
	s := newStore(t)

	pos, err := s.Append([]domain.Event{
		{EventType: "CourseCapacityChanged", Payload: CourseCapacityChanged{CourseID: "c1", NewCapacity: decimal.NewFromInt(30)}},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), pos)

	pos, err = s.Append([]domain.Event{
		{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s1", CourseID: "c1"}},
		{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s2", CourseID: "c1"}},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), pos)
	require.Equal(t, int64(3), s.LastPosition())
}

func TestReadAllReturnsEveryEventInOrder(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 5; i++ {
		_, err := s.Append([]domain.Event{
			{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s", CourseID: "c1"}},
		}, nil)
		require.NoError(t, err)
	}

	events, err := s.Read(domain.All(), domain.Ascending)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, e := range events {
		require.Equal(t, int64(i+1), e.Position)
	}

	descending, err := s.Read(domain.All(), domain.Descending)
	require.NoError(t, err)
	require.Equal(t, int64(5), descending[0].Position)
}

func TestReadFiltersByTagAndType(t *testing.T) {
	s := newStore(t)
	_, err := s.Append([]domain.Event{
		{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s1", CourseID: "c1"}, Tags: []domain.Tag{{Key: "course", Value: "c1"}}},
		{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s2", CourseID: "c2"}, Tags: []domain.Tag{{Key: "course", Value: "c2"}}},
		{EventType: "CourseCapacityChanged", Payload: CourseCapacityChanged{CourseID: "c1", NewCapacity: decimal.NewFromInt(10)}, Tags: []domain.Tag{{Key: "course", Value: "c1"}}},
	}, nil)
	require.NoError(t, err)

	q := domain.Query{Items: []domain.QueryItem{
		{EventTypes: []string{"StudentRegistered"}, Tags: []domain.Tag{{Key: "course", Value: "c1"}}},
	}}
	events, err := s.Read(q, domain.Ascending)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, int64(1), events[0].Position)

	// In-memory Matches must agree with the on-disk resolver for every
	// event appended, regardless of query shape (spec §8.4).
	all, err := s.Read(domain.All(), domain.Ascending)
	require.NoError(t, err)
	for _, e := range all {
		require.Equal(t, q.Matches(e.Event), containsPosition(events, e.Position))
	}
}

func TestAppendConditionRejectsConflictingEvents(t *testing.T) {
	s := newStore(t)
	_, err := s.Append([]domain.Event{
		{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s1", CourseID: "c1"}, Tags: []domain.Tag{{Key: "student", Value: "s1"}}},
	}, nil)
	require.NoError(t, err)

	cond := domain.NewAppendCondition(domain.Query{Items: []domain.QueryItem{
		{EventTypes: []string{"StudentRegistered"}, Tags: []domain.Tag{{Key: "student", Value: "s1"}}},
	}}, nil)

	_, err = s.Append([]domain.Event{
		{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s1", CourseID: "c2"}, Tags: []domain.Tag{{Key: "student", Value: "s1"}}},
	}, &cond)

	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrAppendConditionFailed))
}

func TestAppendConditionAllowsWhenNoDisqualifyingEvent(t *testing.T) {
	s := newStore(t)
	cond := domain.NewAppendCondition(domain.Query{Items: []domain.QueryItem{
		{EventTypes: []string{"StudentRegistered"}, Tags: []domain.Tag{{Key: "student", Value: "s1"}}},
	}}, nil)

	pos, err := s.Append([]domain.Event{
		{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s1", CourseID: "c1"}, Tags: []domain.Tag{{Key: "student", Value: "s1"}}},
	}, &cond)
	require.NoError(t, err)
	require.Equal(t, int64(1), pos)
}

func TestAppendConditionConcurrencyMismatch(t *testing.T) {
	s := newStore(t)
	_, err := s.Append([]domain.Event{
		{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s1", CourseID: "c1"}},
	}, nil)
	require.NoError(t, err)

	// The query matches nothing on disk, so only the stale
	// AfterSequencePosition can fail the append.
	stale := int64(0)
	cond := domain.NewAppendCondition(domain.Query{Items: []domain.QueryItem{
		{EventTypes: []string{"CourseCapacityChanged"}},
	}}, &stale)
	_, err = s.Append([]domain.Event{
		{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s2", CourseID: "c1"}},
	}, &cond)

	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrConcurrencyMismatch))
}

func TestAppendRejectsUnregisteredEventType(t *testing.T) {
	s := newStore(t)
	_, err := s.Append([]domain.Event{
		{EventType: "NeverRegistered", Payload: struct{}{}},
	}, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestAppendRejectsEmptyBatch(t *testing.T) {
	s := newStore(t)
	_, err := s.Append(nil, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestRecoveryReconcilesLedgerAfterFreshOpen(t *testing.T) {
	dir := t.TempDir()
	registry := newRegistry()

	s1, err := eventstore.New(dir, registry)
	require.NoError(t, err)
	_, err = s1.Append([]domain.Event{
		{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s1", CourseID: "c1"}},
	}, nil)
	require.NoError(t, err)

	// Reopening the same directory must recover the ledger from the
	// events already on disk even without an explicit close step, since
	// Store holds no long-lived file handles (spec §7).
	s2, err := eventstore.New(dir, registry)
	require.NoError(t, err)
	require.Equal(t, int64(1), s2.LastPosition())

	pos, err := s2.Append([]domain.Event{
		{EventType: "StudentRegistered", Payload: StudentRegistered{StudentID: "s2", CourseID: "c1"}},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), pos)
}

func containsPosition(events []domain.SequencedEvent, pos int64) bool {
	for _, e := range events {
		if e.Position == pos {
			return true
		}
	}
	return false
}
