package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/mongoversioning/internal/oplog"
	"github.com/roach88/mongoversioning/internal/store"
)

// DefaultChannelCapacity is the default buffer size of a collection channel.
const DefaultChannelCapacity = 64

// DefaultPrefix is prepended to a collection name to form its history
// collection.
const DefaultPrefix = "history_"

// ErrorHandler receives errors the engine cannot return to a caller: tail
// read failures and handler failures. It is called from engine goroutines
// and must be safe for concurrent use.
type ErrorHandler func(err error)

// RunIDGenerator generates the id attached to one Start..Stop session.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}

// Engine tails the oplog and appends a history snapshot for every mutation
// of its configured collections.
//
// Lifecycle: New → Connect → Start → (Wait | Stop). Connect resolves the
// resume point of every collection; Start opens the cursor and launches
// the tail goroutine and, lazily, one worker per collection.
//
// Thread-safety model:
//   - Connect, Start, Stop: safe from any goroutine, serialised internally
//   - Wait, Resolve, Channels: safe from any goroutine
//   - tail loop: exactly one goroutine per session
//   - handlers: one goroutine per collection, never two in flight for the
//     same collection
//
// INVARIANTS:
//   - snapshots of one document are appended in oplog order
//   - a record is never dropped while the engine runs; a full channel
//     blocks the tailer instead
//   - a failed record stalls only its own collection
type Engine struct {
	store    store.VersionStore
	source   oplog.Source
	database string
	names    []string
	prefix   string
	capacity int
	report   ErrorHandler
	metrics  *Metrics
	runIDs   RunIDGenerator

	mu          sync.Mutex
	collections []CollectionConfig
	filter      oplog.Filter
	connected   bool
	runID       string
	cancel      context.CancelFunc
	demux       *demux
	done        chan struct{}
	tailErr     error
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithPrefix sets the history collection prefix.
//
// Default: "history_" (DefaultPrefix)
func WithPrefix(prefix string) Option {
	return func(e *Engine) {
		e.prefix = prefix
	}
}

// WithChannelCapacity sets the buffer size of each collection channel.
// Values below 1 are ignored.
//
// Default: 64 (DefaultChannelCapacity)
func WithChannelCapacity(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.capacity = n
		}
	}
}

// WithErrorHandler sets the callback for asynchronous errors.
//
// Default: log with slog.Error.
func WithErrorHandler(h ErrorHandler) Option {
	return func(e *Engine) {
		if h != nil {
			e.report = h
		}
	}
}

// WithMetrics registers the engine collectors on reg.
//
// Default: a private registry that nothing scrapes.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = NewMetrics(reg)
	}
}

// WithRunIDGenerator sets the run id generator.
//
// Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// New creates an Engine that versions the named collections of database,
// reading the oplog from src and writing history to st.
//
// The names slice is copied; its order is the order of the tailing query
// disjuncts.
func New(st store.VersionStore, src oplog.Source, database string, names []string, opts ...Option) *Engine {
	namesCopy := make([]string, len(names))
	copy(namesCopy, names)

	e := &Engine{
		store:    st,
		source:   src,
		database: database,
		names:    namesCopy,
		prefix:   DefaultPrefix,
		capacity: DefaultChannelCapacity,
		report:   logError,
		runIDs:   UUIDv7Generator{},
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(prometheus.NewRegistry())
	}

	return e
}

// Connect resolves the resume point of every collection and builds the
// tailing query. It may be called again before Start to refresh them.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done != nil {
		return errors.New("connect: engine is running")
	}

	cols, err := ResolveCheckpoints(ctx, e.store, e.prefix, e.names)
	if err != nil {
		return NewConnectionError("resolve checkpoints", err)
	}

	e.collections = cols
	e.filter = oplog.BuildFilter(e.database, Bounds(cols))
	e.connected = true

	slog.Info("engine connected",
		"database", e.database,
		"collections", len(cols),
		"prefix", e.prefix,
	)
	return nil
}

// Start opens the oplog cursor and begins tailing in the background.
// It returns once the cursor is open.
//
// A stopped engine can be started again only after a fresh Connect, since
// resume points must be recomputed from the store.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.connected {
		return errors.New("start: engine is not connected")
	}
	if e.done != nil {
		return errors.New("start: engine is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cursor, err := e.source.Open(runCtx, e.filter)
	if err != nil {
		cancel()
		return NewConnectionError("open oplog cursor", err)
	}

	e.runID = e.runIDs.Generate()
	e.cancel = cancel
	e.tailErr = nil
	e.demux = newDemux(e.capacity, e.handle, e.report, e.metrics)
	e.done = make(chan struct{})

	slog.Info("engine starting", "run_id", e.runID, "capacity", e.capacity)

	go e.tail(runCtx, oplog.NewTailer(cursor), e.demux, e.done)
	return nil
}

// tail reads records until the context is cancelled or the cursor ends,
// routing each to its collection channel. On exit it lets the workers
// drain, then closes done.
func (e *Engine) tail(ctx context.Context, t *oplog.Tailer, d *demux, done chan struct{}) {
	defer close(done)
	defer d.wait()
	defer d.close()
	defer func() {
		if err := t.Close(context.Background()); err != nil {
			slog.Warn("closing oplog cursor", "error", err)
		}
	}()

	for {
		rec, err := t.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				slog.Info("engine stopping: context cancelled", "records", t.Count())
			case oplog.IsEnd(err):
				slog.Info("oplog stream ended", "records", t.Count())
			default:
				terr := NewTailReadError(t.Count(), err)
				e.mu.Lock()
				e.tailErr = terr
				e.mu.Unlock()
				e.report(terr)
			}
			return
		}
		e.metrics.RecordsRead.Inc()

		if !e.versioned(rec.Collection()) {
			slog.Debug("skipping record of unversioned namespace", "ns", rec.Namespace)
			continue
		}

		if err := d.route(ctx, rec); err != nil {
			slog.Info("engine stopping: context cancelled", "records", t.Count())
			return
		}
	}
}

func (e *Engine) versioned(collection string) bool {
	for _, n := range e.names {
		if n == collection {
			return true
		}
	}
	return false
}

// Wait blocks until the current session ends: after Stop, or once the
// cursor is exhausted and every buffered record has been handled. It
// returns the tail read error that ended the session, if any.
//
// A stalled channel keeps Wait blocked until it is resolved or the engine
// is stopped.
func (e *Engine) Wait() error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done == nil {
		return nil
	}
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tailErr
}

// Stop cancels tailing, closes the cursor, stops workers from taking new
// records and waits for in-flight handlers. Records still buffered are not
// handled; a later Connect resumes from the store's checkpoints and reads
// them again. Stop is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done, runID := e.cancel, e.done, e.runID
	e.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done

	e.mu.Lock()
	e.done = nil
	e.cancel = nil
	e.connected = false
	e.mu.Unlock()

	slog.Info("engine stopped", "run_id", runID)
}

// Resolve releases a stalled collection channel with a retry or skip.
func (e *Engine) Resolve(collection string, r Resolution) error {
	e.mu.Lock()
	d := e.demux
	e.mu.Unlock()

	if d == nil {
		return errors.New("resolve: engine has not started")
	}
	ch, ok := d.lookup(collection)
	if !ok {
		return fmt.Errorf("resolve: no channel for collection %q", collection)
	}
	return ch.Resolve(r)
}

// Channels returns the status of every collection channel started in the
// current or last session, ordered by collection name.
func (e *Engine) Channels() []ChannelStatus {
	e.mu.Lock()
	d := e.demux
	e.mu.Unlock()

	if d == nil {
		return []ChannelStatus{}
	}
	return d.statuses()
}

// Collections returns the resolved resume points from the last Connect.
func (e *Engine) Collections() []CollectionConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]CollectionConfig, len(e.collections))
	copy(out, e.collections)
	return out
}

// Filter returns the tailing query built by the last Connect.
func (e *Engine) Filter() oplog.Filter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// RunID returns the id of the current or last session.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

func logError(err error) {
	slog.Error("engine error", "error", err)
}
