package eventstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/eventstore"
	"github.com/stretchr/testify/require"
)

// TestRecoverRepairsIndicesForOrphanedEventFiles simulates a crash between
// an event file's rename and its index Add (spec §7 step 4 vs step 5): the
// event file is committed on disk but its tag index never got the
// position. Reopening the store must notice the gap and repair the index
// during recover, not merely reconcile the ledger, or a filtered Read would
// permanently miss the event.
func TestRecoverRepairsIndicesForOrphanedEventFiles(t *testing.T) {
	dir := t.TempDir()

	s, err := eventstore.New(dir, newRegistry(), eventstore.WithFlushEventsImmediately(false))
	require.NoError(t, err)

	_, err = s.Append([]domain.Event{
		{
			EventType: "StudentRegistered",
			Payload:   StudentRegistered{StudentID: "s1", CourseID: "c1"},
			Tags:      []domain.Tag{{Key: "course", Value: "c1"}},
		},
	}, nil)
	require.NoError(t, err)

	byCourse := domain.Query{Items: []domain.QueryItem{{Tags: []domain.Tag{{Key: "course", Value: "c1"}}}}}
	events, err := s.Read(byCourse, domain.Ascending)
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Simulate the crash window: remove every index file, leaving only the
	// committed event file and ledger behind, exactly as if the process
	// died after the rename but before the index Add.
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "indices")))

	reopened, err := eventstore.New(dir, newRegistry(), eventstore.WithFlushEventsImmediately(false))
	require.NoError(t, err)

	events, err = reopened.Read(byCourse, domain.Ascending)
	require.NoError(t, err)
	require.Len(t, events, 1, "recover must repair the tag index, not just reconcile the ledger")
	require.Equal(t, "s1", events[0].Event.Payload.(*StudentRegistered).StudentID)

	byType, err := reopened.Read(domain.Query{Items: []domain.QueryItem{{EventTypes: []string{"StudentRegistered"}}}}, domain.Ascending)
	require.NoError(t, err)
	require.Len(t, byType, 1, "recover must also repair the event-type index")
}
