package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mongoversioning/internal/doc"
	"github.com/roach88/mongoversioning/internal/oplog"
	"github.com/roach88/mongoversioning/internal/store"
)

// failingReadStore fails every checkpoint lookup.
type failingReadStore struct {
	store.VersionStore
}

func (failingReadStore) LastSnapshot(ctx context.Context, collection string) (store.Snapshot, bool, error) {
	return store.Snapshot{}, false, errors.New("server selection timeout")
}

func appendSnap(t *testing.T, s store.VersionStore, coll, id string, ts oplog.Timestamp) {
	t.Helper()
	err := s.Append(context.Background(), coll, store.Snapshot{
		DocID: doc.String(id),
		TS:    ts,
		Body:  doc.Object{},
	})
	require.NoError(t, err)
}

func TestResolveCheckpoints_FreshCollections(t *testing.T) {
	s := setupTestStore(t)

	cols, err := ResolveCheckpoints(context.Background(), s, "history_", []string{"patients", "visits"})
	require.NoError(t, err)

	assert.Equal(t, []CollectionConfig{
		{Name: "patients", LowerBound: oplog.Zero},
		{Name: "visits", LowerBound: oplog.Zero},
	}, cols)
}

func TestResolveCheckpoints_GreatestTimestamp(t *testing.T) {
	s := setupTestStore(t)
	appendSnap(t, s, "history_patients", "p1", oplog.Timestamp{T: 100, I: 3})
	appendSnap(t, s, "history_patients", "p2", oplog.Timestamp{T: 200, I: 1})
	appendSnap(t, s, "history_patients", "p1", oplog.Timestamp{T: 150, I: 9})
	appendSnap(t, s, "history_visits", "v1", oplog.Timestamp{T: 50, I: 1})

	cols, err := ResolveCheckpoints(context.Background(), s, "history_", []string{"visits", "patients", "labs"})
	require.NoError(t, err)

	// output keeps input order
	assert.Equal(t, []CollectionConfig{
		{Name: "visits", LowerBound: oplog.Timestamp{T: 50, I: 1}},
		{Name: "patients", LowerBound: oplog.Timestamp{T: 200, I: 1}},
		{Name: "labs", LowerBound: oplog.Zero},
	}, cols)
}

func TestResolveCheckpoints_Monotonic(t *testing.T) {
	s := setupTestStore(t)
	names := []string{"patients"}

	appendSnap(t, s, "history_patients", "p1", oplog.Timestamp{T: 10, I: 1})
	before, err := ResolveCheckpoints(context.Background(), s, "history_", names)
	require.NoError(t, err)

	appendSnap(t, s, "history_patients", "p1", oplog.Timestamp{T: 10, I: 2})
	after, err := ResolveCheckpoints(context.Background(), s, "history_", names)
	require.NoError(t, err)

	assert.True(t, after[0].LowerBound.Compare(before[0].LowerBound) >= 0)
	assert.Equal(t, oplog.Timestamp{T: 10, I: 2}, after[0].LowerBound)
}

func TestResolveCheckpoints_Prefix(t *testing.T) {
	s := setupTestStore(t)
	appendSnap(t, s, "versions_patients", "p1", oplog.Timestamp{T: 10, I: 1})

	cols, err := ResolveCheckpoints(context.Background(), s, "history_", []string{"patients"})
	require.NoError(t, err)
	assert.Equal(t, oplog.Zero, cols[0].LowerBound)

	cols, err = ResolveCheckpoints(context.Background(), s, "versions_", []string{"patients"})
	require.NoError(t, err)
	assert.Equal(t, oplog.Timestamp{T: 10, I: 1}, cols[0].LowerBound)
}

func TestResolveCheckpoints_Error(t *testing.T) {
	s := setupTestStore(t)

	_, err := ResolveCheckpoints(context.Background(), failingReadStore{s}, "history_", []string{"patients"})

	assert.ErrorContains(t, err, "checkpoint patients")
}

func TestResolveCheckpoints_Empty(t *testing.T) {
	s := setupTestStore(t)

	cols, err := ResolveCheckpoints(context.Background(), s, "history_", nil)

	require.NoError(t, err)
	assert.Empty(t, cols)
}
