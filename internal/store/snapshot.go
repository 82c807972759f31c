package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/mongoversioning/internal/doc"
	"github.com/roach88/mongoversioning/internal/oplog"
)

// Field names of the versioning metadata stored on every snapshot.
const (
	FieldID      = "versioning_id"
	FieldTS      = "versioning_ts"
	FieldVersion = "versioning_version"
	FieldDelete  = "versioning_delete"
)

// historyIDField is the history document's own identity, assigned by the
// store. It is never part of a Snapshot.
const historyIDField = "_id"

// Snapshot is one point-in-time version of a source document.
//
// INVARIANTS:
//   - snapshots are only ever appended, never modified or removed
//   - Version is 0 for the insert, +1 for each update of the same DocID
//   - tombstones (Deleted) carry no versioning_version field
type Snapshot struct {
	DocID   doc.Value
	TS      oplog.Timestamp
	Version int64
	Deleted bool
	Body    doc.Object
}

// Document renders the snapshot as the stored history document: the body in
// its own field order followed by the versioning metadata.
func (s Snapshot) Document() doc.Object {
	out := make(doc.Object, 0, len(s.Body)+3)
	out = append(out, s.Body.Without(FieldID, FieldTS, FieldVersion, FieldDelete)...)
	out = append(out,
		doc.Field{Key: FieldID, Value: s.DocID},
		doc.Field{Key: FieldTS, Value: doc.Opaque{V: s.TS.Primitive()}},
	)
	if s.Deleted {
		out = append(out, doc.Field{Key: FieldDelete, Value: doc.Bool(true)})
	} else {
		out = append(out, doc.Field{Key: FieldVersion, Value: doc.Int(s.Version)})
	}
	return out
}

// SnapshotFromDocument parses a stored history document.
func SnapshotFromDocument(d doc.Object) (Snapshot, error) {
	id, _ := d.Get(FieldID)
	s := Snapshot{DocID: id}
	if s.DocID == nil {
		return Snapshot{}, fmt.Errorf("history document has no %s", FieldID)
	}

	rawTS, _ := d.Get(FieldTS)
	ts, ok := rawTS.(doc.Opaque)
	if !ok {
		return Snapshot{}, fmt.Errorf("history document has no %s timestamp", FieldTS)
	}
	pts, ok := ts.V.(primitive.Timestamp)
	if !ok {
		return Snapshot{}, fmt.Errorf("%s is %T, want timestamp", FieldTS, ts.V)
	}
	s.TS = oplog.FromPrimitive(pts)

	version, _ := d.Get(FieldVersion)
	switch v := version.(type) {
	case nil:
	case doc.Int32:
		s.Version = int64(v)
	case doc.Int:
		s.Version = int64(v)
	case doc.Double:
		s.Version = int64(v)
	default:
		return Snapshot{}, fmt.Errorf("%s is %T, want number", FieldVersion, v)
	}

	deleted, _ := d.Get(FieldDelete)
	if del, ok := deleted.(doc.Bool); ok {
		s.Deleted = bool(del)
	}

	s.Body = d.Without(historyIDField, FieldID, FieldTS, FieldVersion, FieldDelete)
	return s, nil
}

// VersionStore appends and reads history snapshots. Each versioned source
// collection maps to one history collection named by the caller.
//
// Thread-safety: implementations are safe for concurrent use. Appends to
// different collections never interact.
type VersionStore interface {
	// Append writes s to collection as a single atomic document write.
	Append(ctx context.Context, collection string, s Snapshot) error

	// LatestFor returns the most recently appended snapshot of docID in
	// collection (insertion order). ok is false if there is none.
	LatestFor(ctx context.Context, collection string, docID doc.Value) (s Snapshot, ok bool, err error)

	// LastSnapshot returns the snapshot with the greatest versioning_ts in
	// collection, ties broken by versioning_id descending.
	LastSnapshot(ctx context.Context, collection string) (s Snapshot, ok bool, err error)

	// History returns all snapshots of docID in insertion order.
	History(ctx context.Context, collection string, docID doc.Value) ([]Snapshot, error)

	// Close releases the store's connection.
	Close(ctx context.Context) error
}
