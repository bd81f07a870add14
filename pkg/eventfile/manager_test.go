package eventfile

import (
	"testing"
	"time"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/payload"
	"github.com/stretchr/testify/require"
)

type studentEnrolled struct {
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId"`
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	registry := payload.NewRegistry()
	payload.Register[studentEnrolled](registry, "StudentEnrolled")
	return New(t.TempDir(), registry, false)
}

func TestWriteReadRoundTripsPositionPayloadTagsAndMetadata(t *testing.T) {
	m := newManager(t)
	corr := "corr-1"

	seq := domain.SequencedEvent{
		Position: 7,
		Event: domain.Event{
			EventType: "StudentEnrolled",
			Payload:   studentEnrolled{StudentID: "s1", CourseID: "c1"},
			Tags:      []domain.Tag{{Key: "course", Value: "c1"}},
		},
		Metadata: domain.Metadata{
			Timestamp:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			CorrelationID: &corr,
		},
	}

	require.NoError(t, m.Write(seq))

	got, err := m.Read(7)
	require.NoError(t, err)
	require.Equal(t, int64(7), got.Position)
	require.Equal(t, "StudentEnrolled", got.Event.EventType)
	require.Equal(t, seq.Event.Tags, got.Event.Tags)
	require.Equal(t, &studentEnrolled{StudentID: "s1", CourseID: "c1"}, got.Event.Payload)
	require.True(t, seq.Metadata.Timestamp.Equal(got.Metadata.Timestamp))
	require.Equal(t, corr, *got.Metadata.CorrelationID)
}

func TestReadOfMissingPositionIsStorageCorruption(t *testing.T) {
	m := newManager(t)
	_, err := m.Read(42)
	require.ErrorIs(t, err, domain.ErrStorageCorruption)
}

func TestReadManyPreservesOrderBelowParallelThreshold(t *testing.T) {
	m := newManager(t)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, m.Write(domain.SequencedEvent{
			Position: i,
			Event:    domain.Event{EventType: "StudentEnrolled", Payload: studentEnrolled{StudentID: "s", CourseID: "c"}},
			Metadata: domain.Metadata{Timestamp: time.Now().UTC()},
		}))
	}

	got, err := m.ReadMany([]int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []int64{1, 2, 3}, []int64{got[0].Position, got[1].Position, got[2].Position})
}

func TestReadManyFansOutAboveParallelThresholdAndPreservesOrder(t *testing.T) {
	m := newManager(t)
	var positions []int64
	for i := int64(1); i <= int64(parallelThreshold+5); i++ {
		positions = append(positions, i)
		require.NoError(t, m.Write(domain.SequencedEvent{
			Position: i,
			Event:    domain.Event{EventType: "StudentEnrolled", Payload: studentEnrolled{StudentID: "s", CourseID: "c"}},
			Metadata: domain.Metadata{Timestamp: time.Now().UTC()},
		}))
	}

	got, err := m.ReadMany(positions)
	require.NoError(t, err)
	require.Len(t, got, len(positions))
	for i, e := range got {
		require.Equal(t, positions[i], e.Position)
	}
}

func TestReadManyRejectsUnsortedPositions(t *testing.T) {
	m := newManager(t)
	_, err := m.ReadMany([]int64{2, 1})
	require.Error(t, err)
}

func TestReadManyOfEmptyIsNil(t *testing.T) {
	m := newManager(t)
	got, err := m.ReadMany(nil)
	require.NoError(t, err)
	require.Nil(t, got)
}
