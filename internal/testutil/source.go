package testutil

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/mongoversioning/internal/oplog"
)

// ScriptedSource is an in-memory oplog.Source that replays a fixed list of
// records.
//
// Like a server-side tail it only yields records matching the filter passed
// to Open. After the script it returns io.EOF, the configured failure, or
// (when Live) blocks until the context is cancelled.
//
// Thread-safety: configuration methods must be called before Open. Filters
// and Reads are safe from any goroutine.
type ScriptedSource struct {
	records []oplog.Record
	failErr error
	openErr error
	live    bool

	mu      sync.Mutex
	filters []oplog.Filter
	reads   atomic.Int64
}

// NewScriptedSource creates a source replaying records in order.
func NewScriptedSource(records ...oplog.Record) *ScriptedSource {
	return &ScriptedSource{records: records}
}

// Live makes cursors block after the script instead of returning io.EOF.
func (s *ScriptedSource) Live() *ScriptedSource {
	s.live = true
	return s
}

// FailWith makes cursors return err after the script.
func (s *ScriptedSource) FailWith(err error) *ScriptedSource {
	s.failErr = err
	return s
}

// FailOpen makes Open return err.
func (s *ScriptedSource) FailOpen(err error) *ScriptedSource {
	s.openErr = err
	return s
}

// Open implements oplog.Source.
func (s *ScriptedSource) Open(ctx context.Context, f oplog.Filter) (oplog.Cursor, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.mu.Lock()
	s.filters = append(s.filters, f)
	s.mu.Unlock()

	var selected []oplog.Record
	for _, r := range s.records {
		if f.Match(r) {
			selected = append(selected, r)
		}
	}
	return &scriptedCursor{src: s, records: selected}, nil
}

// Filters returns every filter passed to Open, oldest first.
func (s *ScriptedSource) Filters() []oplog.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]oplog.Filter, len(s.filters))
	copy(out, s.filters)
	return out
}

// Reads returns how many records cursors have handed out.
func (s *ScriptedSource) Reads() int64 {
	return s.reads.Load()
}

type scriptedCursor struct {
	src     *ScriptedSource
	records []oplog.Record
	pos     int
}

func (c *scriptedCursor) Next(ctx context.Context) (oplog.Record, error) {
	if err := ctx.Err(); err != nil {
		return oplog.Record{}, err
	}
	if c.pos < len(c.records) {
		r := c.records[c.pos]
		c.pos++
		c.src.reads.Add(1)
		return r, nil
	}
	switch {
	case c.src.failErr != nil:
		return oplog.Record{}, c.src.failErr
	case c.src.live:
		<-ctx.Done()
		return oplog.Record{}, ctx.Err()
	default:
		return oplog.Record{}, io.EOF
	}
}

func (c *scriptedCursor) Close(ctx context.Context) error {
	return nil
}

// Insert builds an insert record of document d into ns.
func Insert(ns string, ts oplog.Timestamp, d bson.D) oplog.Record {
	return oplog.Record{Op: oplog.OpInsert, RawOp: "i", Namespace: ns, TS: ts, Payload: d}
}

// Update builds an update record of the document with the given _id.
func Update(ns string, ts oplog.Timestamp, id any, descriptor bson.D) oplog.Record {
	return oplog.Record{
		Op:        oplog.OpUpdate,
		RawOp:     "u",
		Namespace: ns,
		TS:        ts,
		Payload:   descriptor,
		Selector:  bson.D{{Key: "_id", Value: id}},
	}
}

// Delete builds a delete record of the document with the given _id.
func Delete(ns string, ts oplog.Timestamp, id any) oplog.Record {
	return oplog.Record{
		Op:        oplog.OpDelete,
		RawOp:     "d",
		Namespace: ns,
		TS:        ts,
		Payload:   bson.D{{Key: "_id", Value: id}},
	}
}

// Noop builds a no-op record, as written by the server's periodic writes.
func Noop(ns string, ts oplog.Timestamp) oplog.Record {
	return oplog.Record{Op: oplog.OpOther, RawOp: "n", Namespace: ns, TS: ts, Payload: bson.D{{Key: "msg", Value: "periodic noop"}}}
}
