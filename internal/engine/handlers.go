package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/mongoversioning/internal/doc"
	"github.com/roach88/mongoversioning/internal/oplog"
	"github.com/roach88/mongoversioning/internal/replay"
	"github.com/roach88/mongoversioning/internal/store"
)

// handle turns one oplog record into at most one history snapshot.
// Called from the record's collection worker; never concurrently for the
// same collection.
func (e *Engine) handle(ctx context.Context, rec oplog.Record) error {
	switch rec.Op {
	case oplog.OpInsert:
		return e.handleInsert(ctx, rec)
	case oplog.OpUpdate:
		return e.handleUpdate(ctx, rec)
	case oplog.OpDelete:
		return e.handleDelete(ctx, rec)
	case oplog.OpOther:
		slog.Debug("ignoring oplog entry",
			"collection", rec.Collection(),
			"op", rec.RawOp,
			"ts", rec.TS.String(),
		)
		return nil
	default:
		return fmt.Errorf("unhandled op kind %d", int(rec.Op))
	}
}

// handleInsert appends version 0 of the inserted document.
func (e *Engine) handleInsert(ctx context.Context, rec oplog.Record) error {
	coll := rec.Collection()
	payload := doc.FromD(rec.Payload)

	id, ok := payload.Get(replay.IDField)
	if !ok {
		return newMalformedError(coll, "insert")
	}

	snap := store.Snapshot{
		DocID:   id,
		TS:      rec.TS,
		Version: 0,
		Body:    payload.Without(replay.IDField),
	}
	return e.append(ctx, coll, snap, "insert")
}

// handleDelete appends a tombstone. The version is not incremented and the
// tombstone carries no version field.
func (e *Engine) handleDelete(ctx context.Context, rec oplog.Record) error {
	coll := rec.Collection()
	payload := doc.FromD(rec.Payload)

	id, ok := payload.Get(replay.IDField)
	if !ok {
		return newMalformedError(coll, "delete")
	}

	snap := store.Snapshot{
		DocID:   id,
		TS:      rec.TS,
		Deleted: true,
		Body:    payload.Without(replay.IDField),
	}
	return e.append(ctx, coll, snap, "delete")
}

// handleUpdate replays the update descriptor onto the identity's most
// recently appended snapshot and appends the result as the next version.
func (e *Engine) handleUpdate(ctx context.Context, rec oplog.Record) error {
	coll := rec.Collection()
	selector := doc.FromD(rec.Selector)

	id, ok := selector.Get(replay.IDField)
	if !ok {
		return newMalformedError(coll, "update")
	}

	base, found, err := e.store.LatestFor(ctx, HistoryName(e.prefix, coll), id)
	if err != nil {
		return NewStoreReadError(coll, idString(id), err)
	}
	if !found {
		return NewMissingBaseError(coll, idString(id))
	}

	desc := replay.ParseDescriptor(rec.Payload)
	if len(desc.Dropped) > 0 {
		slog.Debug("update operators not replayed",
			"collection", coll,
			"id", idString(id),
			"operators", desc.Dropped,
		)
	}

	body, err := replay.Apply(base.Body, desc)
	if err != nil {
		return NewReplayError(coll, idString(id), err)
	}

	snap := store.Snapshot{
		DocID:   id,
		TS:      rec.TS,
		Version: base.Version + 1,
		Body:    body,
	}
	return e.append(ctx, coll, snap, "update")
}

func (e *Engine) append(ctx context.Context, coll string, snap store.Snapshot, op string) error {
	if err := e.store.Append(ctx, HistoryName(e.prefix, coll), snap); err != nil {
		return NewWriteError(coll, idString(snap.DocID), err)
	}
	e.metrics.SnapshotsWritten.WithLabelValues(coll, op).Inc()

	slog.Debug("snapshot appended",
		"collection", coll,
		"op", op,
		"id", idString(snap.DocID),
		"version", snap.Version,
		"ts", snap.TS.String(),
		"run_id", e.runID,
	)
	return nil
}

// idString renders a document identity for logs and errors.
func idString(id doc.Value) string {
	data, err := doc.MarshalCanonical(id)
	if err != nil {
		return fmt.Sprintf("%v", id)
	}
	return string(data)
}
