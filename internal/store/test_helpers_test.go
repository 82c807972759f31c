package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/mongoversioning/internal/doc"
	"github.com/roach88/mongoversioning/internal/oplog"
)

// createTestStore creates a new temp-dir SQLite store for testing.
func createTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

// createTestSnapshot creates a live snapshot with minimal fields.
func createTestSnapshot(id string, t, i uint32, version int64) Snapshot {
	return Snapshot{
		DocID:   doc.String(id),
		TS:      oplog.Timestamp{T: t, I: i},
		Version: version,
		Body:    doc.Object{{Key: "name", Value: doc.String("Yao")}, {Key: "age", Value: doc.Int32(5)}},
	}
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
