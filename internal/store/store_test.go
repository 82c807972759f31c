package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/mongoversioning/internal/doc"
	"github.com/roach88/mongoversioning/internal/oplog"
)

func TestOpenSQLite_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	s1, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s1.Append(context.Background(), "history_patients", createTestSnapshot("p1", 1, 1, 0)))
	require.NoError(t, s1.Close(context.Background()))

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close(context.Background())

	_, ok, err := s2.LastSnapshot(context.Background(), "history_patients")
	require.NoError(t, err)
	assert.True(t, ok, "reopening must keep existing history")
}

func TestOpenSQLite_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newer.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion+1))
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))

	_, err = OpenSQLite(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version 2")
}

func TestSnapshotDocument_RoundTrip(t *testing.T) {
	oid := primitive.NewObjectID()
	snap := Snapshot{
		DocID:   doc.Opaque{V: oid},
		TS:      oplog.Timestamp{T: 10, I: 4},
		Version: 3,
		Body:    doc.Object{{Key: "name", Value: doc.String("Yao")}},
	}

	d := snap.Document()
	version, _ := d.Get(FieldVersion)
	assert.Equal(t, doc.Int(3), version)
	assert.Equal(t, []string{"name", FieldID, FieldTS, FieldVersion}, d.Keys())

	back, err := SnapshotFromDocument(d)
	require.NoError(t, err)
	assert.Equal(t, snap, back)
}

func TestSnapshotDocument_TombstoneHasNoVersion(t *testing.T) {
	snap := Snapshot{DocID: doc.String("p1"), TS: oplog.Timestamp{T: 1}, Version: 7, Deleted: true, Body: doc.Object{}}

	d := snap.Document()

	assert.NotContains(t, d.Keys(), FieldVersion)
	deleted, _ := d.Get(FieldDelete)
	assert.Equal(t, doc.Bool(true), deleted)
}

func TestSnapshotFromDocument_Errors(t *testing.T) {
	_, err := SnapshotFromDocument(doc.Object{})
	assert.Error(t, err, "missing id")

	_, err = SnapshotFromDocument(doc.Object{{Key: FieldID, Value: doc.String("x")}})
	assert.Error(t, err, "missing ts")

	_, err = SnapshotFromDocument(doc.Object{{Key: FieldID, Value: doc.String("x")}, {Key: FieldTS, Value: doc.Int(1)}})
	assert.Error(t, err, "ts of wrong kind")
}

func TestSnapshotFromDocument_StripsHistoryID(t *testing.T) {
	d := doc.Object{
		{Key: "_id", Value: doc.Opaque{V: primitive.NewObjectID()}},
		{Key: "name", Value: doc.String("Yao")},
		{Key: FieldID, Value: doc.String("p1")},
		{Key: FieldTS, Value: doc.Opaque{V: primitive.Timestamp{T: 1, I: 1}}},
		{Key: FieldVersion, Value: doc.Int32(2)},
	}

	snap, err := SnapshotFromDocument(d)
	require.NoError(t, err)

	assert.Equal(t, doc.Object{{Key: "name", Value: doc.String("Yao")}}, snap.Body)
	assert.Equal(t, int64(2), snap.Version)
}
