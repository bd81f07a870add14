package domain_test

import (
	"testing"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/stretchr/testify/require"
)

func TestAllMatchesEveryEvent(t *testing.T) {
	q := domain.All()
	require.True(t, q.IsAll())
	require.True(t, q.Matches(domain.Event{EventType: "Anything"}))
}

func TestItemWithNeitherFieldIsVacuous(t *testing.T) {
	q := domain.Query{Items: []domain.QueryItem{{}}}
	require.False(t, q.IsAll())
	require.False(t, q.Matches(domain.Event{EventType: "CourseCreated"}))
}

func TestEventTypesAreADisjunction(t *testing.T) {
	q := domain.Query{Items: []domain.QueryItem{
		{EventTypes: []string{"CourseCreated", "StudentEnrolled"}},
	}}
	require.True(t, q.Matches(domain.Event{EventType: "CourseCreated"}))
	require.True(t, q.Matches(domain.Event{EventType: "StudentEnrolled"}))
	require.False(t, q.Matches(domain.Event{EventType: "StudentWithdrawn"}))
}

func TestTagsAreAConjunction(t *testing.T) {
	q := domain.Query{Items: []domain.QueryItem{
		{Tags: []domain.Tag{{Key: "course", Value: "c1"}, {Key: "term", Value: "fall"}}},
	}}

	require.False(t, q.Matches(domain.Event{Tags: []domain.Tag{{Key: "course", Value: "c1"}}}))
	require.True(t, q.Matches(domain.Event{Tags: []domain.Tag{
		{Key: "course", Value: "c1"},
		{Key: "term", Value: "fall"},
	}}))
}

func TestTypeAndTagCombineWithAnd(t *testing.T) {
	q := domain.Query{Items: []domain.QueryItem{
		{EventTypes: []string{"StudentEnrolled"}, Tags: []domain.Tag{{Key: "course", Value: "c1"}}},
	}}

	require.False(t, q.Matches(domain.Event{
		EventType: "StudentEnrolled",
		Tags:      []domain.Tag{{Key: "course", Value: "c2"}},
	}))
	require.True(t, q.Matches(domain.Event{
		EventType: "StudentEnrolled",
		Tags:      []domain.Tag{{Key: "course", Value: "c1"}},
	}))
}

func TestQueryIsADisjunctionOfItems(t *testing.T) {
	q := domain.Query{Items: []domain.QueryItem{
		{EventTypes: []string{"CourseCreated"}},
		{Tags: []domain.Tag{{Key: "urgent", Value: "true"}}},
	}}

	require.True(t, q.Matches(domain.Event{EventType: "CourseCreated"}))
	require.True(t, q.Matches(domain.Event{EventType: "Anything", Tags: []domain.Tag{{Key: "urgent", Value: "true"}}}))
	require.False(t, q.Matches(domain.Event{EventType: "Anything"}))
}
