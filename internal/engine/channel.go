package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/mongoversioning/internal/oplog"
)

// ChannelState is the worker state of a collection channel.
type ChannelState int

const (
	// StateIdle means the worker is waiting for the next record.
	StateIdle ChannelState = iota
	// StateProcessing means a handler is in flight.
	StateProcessing
	// StateStalled means the last handler failed and the channel waits
	// for Engine.Resolve.
	StateStalled
)

// String returns the state name.
func (s ChannelState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateStalled:
		return "stalled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Resolution tells a stalled channel how to continue.
type Resolution int

const (
	// ResolutionRetry runs the failed record's handler again.
	ResolutionRetry Resolution = iota + 1
	// ResolutionSkip discards the failed record and moves on.
	ResolutionSkip
)

// ErrNotStalled is returned by Resolve for a channel that is not stalled.
var ErrNotStalled = errors.New("channel is not stalled")

// handlerFunc processes one record of a collection.
type handlerFunc func(ctx context.Context, rec oplog.Record) error

// ChannelStatus is a point-in-time view of a collection channel.
type ChannelStatus struct {
	Collection string          `json:"collection"`
	State      string          `json:"state"`
	Buffered   int             `json:"buffered"`
	Capacity   int             `json:"capacity"`
	Processed  int64           `json:"processed"`
	LastTS     oplog.Timestamp `json:"last_ts"`
	LastError  string          `json:"last_error,omitempty"`
}

// collectionChannel is the bounded FIFO of one collection plus the worker
// that drains it.
//
// INVARIANTS:
//   - at most one handler is in flight per channel
//   - records are handled in the order they were sent
//   - a failed record blocks every later record until resolved
//
// Thread-safety: records is written only by the demux goroutine and closed
// by it once tailing ends. State fields are guarded by mu.
type collectionChannel struct {
	name    string
	records chan oplog.Record
	handle  handlerFunc
	report  ErrorHandler
	metrics *Metrics

	resolve chan Resolution // buffered, size 1

	mu        sync.Mutex
	state     ChannelState
	processed int64
	lastTS    oplog.Timestamp
	lastErr   error
}

func newCollectionChannel(name string, capacity int, handle handlerFunc, report ErrorHandler, m *Metrics) *collectionChannel {
	return &collectionChannel{
		name:    name,
		records: make(chan oplog.Record, capacity),
		handle:  handle,
		report:  report,
		metrics: m,
		resolve: make(chan Resolution, 1),
	}
}

// run is the worker loop: dequeue, dispatch, await, repeat.
// It returns when ctx is cancelled or records is closed and drained.
//
// CRITICAL: handlers run under context.WithoutCancel so that Stop never
// interrupts a write half way. Cancellation only stops further dequeues.
func (c *collectionChannel) run(ctx context.Context) {
	handlerCtx := context.WithoutCancel(ctx)

	for {
		var rec oplog.Record
		select {
		case <-ctx.Done():
			return
		case r, ok := <-c.records:
			if !ok {
				return
			}
			rec = r
		}
		if ctx.Err() != nil {
			return
		}
		c.metrics.ChannelDepth.WithLabelValues(c.name).Set(float64(len(c.records)))

		if !c.process(ctx, handlerCtx, rec) {
			return
		}
	}
}

// process handles rec until it succeeds or is skipped. It returns false if
// ctx was cancelled while the channel was stalled.
func (c *collectionChannel) process(ctx, handlerCtx context.Context, rec oplog.Record) bool {
	for {
		c.setState(StateProcessing, nil)

		start := time.Now()
		err := c.handle(handlerCtx, rec)
		c.metrics.HandlerDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

		if err == nil {
			c.mu.Lock()
			c.state = StateIdle
			c.processed++
			c.lastTS = rec.TS
			c.lastErr = nil
			c.mu.Unlock()
			return true
		}

		c.setState(StateStalled, err)
		c.metrics.HandlerErrors.WithLabelValues(c.name, errorCode(err)).Inc()
		c.report(err)

		slog.Warn("collection channel stalled",
			"collection", c.name,
			"ts", rec.TS.String(),
			"op", rec.Op.String(),
			"buffered", len(c.records),
		)

		select {
		case <-ctx.Done():
			return false
		case r := <-c.resolve:
			if r == ResolutionSkip {
				slog.Info("skipping failed record",
					"collection", c.name,
					"ts", rec.TS.String(),
				)
				c.mu.Lock()
				c.state = StateIdle
				c.lastTS = rec.TS
				c.mu.Unlock()
				return true
			}
			slog.Info("retrying failed record",
				"collection", c.name,
				"ts", rec.TS.String(),
			)
		}
	}
}

// Resolve releases a stalled channel.
func (c *collectionChannel) Resolve(r Resolution) error {
	if r != ResolutionRetry && r != ResolutionSkip {
		return fmt.Errorf("unknown resolution %d", int(r))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStalled {
		return fmt.Errorf("resolve %s: %w", c.name, ErrNotStalled)
	}

	select {
	case c.resolve <- r:
		return nil
	default:
		return fmt.Errorf("resolve %s: resolution already pending", c.name)
	}
}

// Status returns the channel's current view.
func (c *collectionChannel) Status() ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := ChannelStatus{
		Collection: c.name,
		State:      c.state.String(),
		Buffered:   len(c.records),
		Capacity:   cap(c.records),
		Processed:  c.processed,
		LastTS:     c.lastTS,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

func (c *collectionChannel) setState(s ChannelState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	if err != nil {
		c.lastErr = err
	}
}

func errorCode(err error) string {
	var ee *Error
	if errors.As(err, &ee) {
		return string(ee.Code)
	}
	return "UNKNOWN"
}
