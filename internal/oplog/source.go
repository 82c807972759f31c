package oplog

import (
	"context"
	"errors"
	"io"
)

// Source opens cursors over an oplog.
type Source interface {
	// Open starts reading entries selected by f. Implementations push the
	// filter down when they can.
	Open(ctx context.Context, f Filter) (Cursor, error)
}

// Cursor yields oplog records in log order.
type Cursor interface {
	// Next blocks until the next record is available. It returns io.EOF when
	// the source is exhausted; a live tail never returns io.EOF on its own.
	Next(ctx context.Context) (Record, error)

	// Close releases the cursor and its connection.
	Close(ctx context.Context) error
}

// Tailer owns the live cursor of one tail session.
//
// A Tailer is not restartable: after the first error (or io.EOF) every later
// Next returns that same error. A new session must recompute resume points
// and open a new cursor rather than reuse this one.
//
// Thread-safety: a Tailer is owned by one goroutine. To stop a blocked Next,
// cancel its context, then Close from the same goroutine.
type Tailer struct {
	cursor Cursor
	err    error
	count  int64
}

// NewTailer wraps an open cursor.
func NewTailer(c Cursor) *Tailer {
	return &Tailer{cursor: c}
}

// Next returns the next record or the terminal error.
func (t *Tailer) Next(ctx context.Context) (Record, error) {
	if t.err != nil {
		return Record{}, t.err
	}
	rec, err := t.cursor.Next(ctx)
	if err != nil {
		t.err = err
		return Record{}, err
	}
	t.count++
	return rec, nil
}

// Count returns the number of records read so far.
func (t *Tailer) Count() int64 {
	return t.count
}

// Close closes the underlying cursor.
func (t *Tailer) Close(ctx context.Context) error {
	return t.cursor.Close(ctx)
}

// IsEnd reports whether err marks a normally exhausted source.
func IsEnd(err error) bool {
	return errors.Is(err, io.EOF)
}
