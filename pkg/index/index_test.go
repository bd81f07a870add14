package index_test

import (
	"path/filepath"
	"testing"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/index"
	"github.com/stretchr/testify/require"
)

func TestSetAddIsSortedAndDeduplicated(t *testing.T) {
	dir := t.TempDir()
	s := index.New(filepath.Join(dir, "set.json"))

	require.NoError(t, s.Add(5))
	require.NoError(t, s.Add(1))
	require.NoError(t, s.Add(3))
	require.NoError(t, s.Add(3)) // duplicate, no-op

	require.Equal(t, []int64{1, 3, 5}, s.Read())
}

func TestSetReadOnMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := index.New(filepath.Join(dir, "missing.json"))
	require.Empty(t, s.Read())
}

func TestUnionSortsAndDeduplicatesAcrossSets(t *testing.T) {
	got := index.Union([]int64{1, 3, 5}, []int64{2, 3, 4})
	require.Equal(t, []int64{1, 2, 3, 4, 5}, got)
}

func TestUnionOfNoSetsIsEmpty(t *testing.T) {
	require.Empty(t, index.Union())
}

func TestIntersectionNarrowsToCommonPositions(t *testing.T) {
	got := index.Intersection([]int64{1, 2, 3, 4}, []int64{2, 4, 6}, []int64{2, 4})
	require.Equal(t, []int64{2, 4}, got)
}

func TestIntersectionShortCircuitsOnEmptyResult(t *testing.T) {
	got := index.Intersection([]int64{1, 2}, []int64{3, 4})
	require.Empty(t, got)
}

func TestIntersectionOfNoSetsIsNil(t *testing.T) {
	require.Nil(t, index.Intersection())
}

func TestIndicesAddEventPopulatesEventTypeAndTagIndices(t *testing.T) {
	dir := t.TempDir()
	ix := index.NewIndices(dir)

	require.NoError(t, ix.AddEvent(1, "StudentEnrolled", []domain.Tag{
		{Key: "course", Value: "c1"},
		{Key: "student", Value: "s1"},
	}))
	require.NoError(t, ix.AddEvent(2, "StudentEnrolled", []domain.Tag{
		{Key: "course", Value: "c1"},
		{Key: "student", Value: "s2"},
	}))

	require.Equal(t, []int64{1, 2}, ix.EventType("StudentEnrolled").Read())
	require.Equal(t, []int64{1, 2}, ix.TagSet(domain.Tag{Key: "course", Value: "c1"}).Read())
	require.Equal(t, []int64{1}, ix.TagSet(domain.Tag{Key: "student", Value: "s1"}).Read())
}
