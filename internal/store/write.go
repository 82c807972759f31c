package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Append inserts a snapshot row. There is no conflict handling: replaying
// the same oplog entry twice appends two snapshots.
func (s *SQLite) Append(ctx context.Context, collection string, snap Snapshot) error {
	if snap.DocID == nil {
		return fmt.Errorf("append to %s: snapshot has no document id", collection)
	}

	key, err := docKey(snap.DocID)
	if err != nil {
		return fmt.Errorf("append to %s: %w", collection, err)
	}

	data, err := marshalDocument(snap)
	if err != nil {
		return fmt.Errorf("append to %s: %w", collection, err)
	}

	var version sql.NullInt64
	if !snap.Deleted {
		version = sql.NullInt64{Int64: snap.Version, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots
		(collection, doc_key, ts_t, ts_i, version, deleted, document)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		collection,
		key,
		snap.TS.T,
		snap.TS.I,
		version,
		snap.Deleted,
		data,
	)
	if err != nil {
		return fmt.Errorf("append to %s: %w", collection, err)
	}

	return nil
}
