package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/mongoversioning/internal/doc"
)

// LatestFor returns the last appended snapshot of docID.
func (s *SQLite) LatestFor(ctx context.Context, collection string, docID doc.Value) (Snapshot, bool, error) {
	key, err := docKey(docID)
	if err != nil {
		return Snapshot{}, false, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT document FROM snapshots
		WHERE collection = ? AND doc_key = ?
		ORDER BY seq DESC
		LIMIT 1
	`, collection, key)

	return scanOne(row, "latest snapshot")
}

// LastSnapshot returns the checkpoint snapshot of collection.
func (s *SQLite) LastSnapshot(ctx context.Context, collection string) (Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document FROM snapshots
		WHERE collection = ?
		ORDER BY ts_t DESC, ts_i DESC, doc_key DESC
		LIMIT 1
	`, collection)

	return scanOne(row, "last snapshot")
}

// History returns every snapshot of docID in insertion order.
// Returns an empty slice (not nil) if none exist.
func (s *SQLite) History(ctx context.Context, collection string, docID doc.Value) ([]Snapshot, error) {
	key, err := docKey(docID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document FROM snapshots
		WHERE collection = ? AND doc_key = ?
		ORDER BY seq ASC
	`, collection, key)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		snap, err := unmarshalDocument(data)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return snaps, nil
}

// scanOne reads a single document column, mapping no rows to ok=false.
func scanOne(row *sql.Row, what string) (Snapshot, bool, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("query %s: %w", what, err)
	}

	snap, err := unmarshalDocument(data)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}
