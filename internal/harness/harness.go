package harness

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/mongoversioning/internal/doc"
	"github.com/roach88/mongoversioning/internal/engine"
	"github.com/roach88/mongoversioning/internal/oplog"
	"github.com/roach88/mongoversioning/internal/store"
	"github.com/roach88/mongoversioning/internal/testutil"
)

// RunTimeout bounds a single scenario run.
const RunTimeout = 5 * time.Second

// stallPoll is how often a run checks its channels for stalls.
const stallPoll = 5 * time.Millisecond

// Harness runs one scenario against a fresh store.
type Harness struct {
	store  *store.SQLite
	clock  *testutil.DeterministicClock
	runIDs *engine.FixedGenerator

	mu     sync.Mutex
	errors []string
}

// Run executes a scenario and returns the result.
//
// The history database is created in dir, which the caller owns (tests
// pass t.TempDir()).
//
// Execution flow:
//  1. Build oplog records from the scripted steps
//  2. Connect and start an engine over a scripted source
//  3. Wait for the source to drain, handling stalls per on_stall
//  4. Read back history and checkpoints
//  5. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario, dir string) (*Result, error) {
	st, err := store.OpenSQLite(filepath.Join(dir, scenario.Name+".db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close(context.Background())

	h := &Harness{
		store:  st,
		clock:  testutil.NewDeterministicClock(),
		runIDs: engine.NewFixedGenerator("scenario-" + scenario.Name),
	}

	records, err := h.buildRecords(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to build oplog: %w", err)
	}

	opts := []engine.Option{
		engine.WithRunIDGenerator(h.runIDs),
		engine.WithErrorHandler(h.recordError),
	}
	if scenario.Prefix != "" {
		opts = append(opts, engine.WithPrefix(scenario.Prefix))
	}
	eng := engine.New(st, testutil.NewScriptedSource(records...), scenario.database(), scenario.Collections, opts...)

	if err := eng.Connect(ctx); err != nil {
		return nil, err
	}
	if err := eng.Start(ctx); err != nil {
		return nil, err
	}
	defer eng.Stop()

	if err := h.await(eng, scenario.OnStall); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	result.RunID = eng.RunID()
	result.Channels = eng.Channels()
	eng.Stop()

	h.mu.Lock()
	result.EngineErrors = append(result.EngineErrors, h.errors...)
	h.mu.Unlock()

	if err := h.collect(ctx, scenario, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) recordError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err.Error())
}

// buildRecords stamps every step with the next clock timestamp.
func (h *Harness) buildRecords(s *Scenario) ([]oplog.Record, error) {
	records := make([]oplog.Record, 0, len(s.Oplog))
	for i := range s.Oplog {
		step := &s.Oplog[i]
		if step.Tick {
			h.clock.Tick()
		}
		ns := s.database() + "." + step.Collection
		ts := h.clock.Next()

		body, err := nodeDocument(&step.Doc)
		if err != nil {
			return nil, fmt.Errorf("oplog[%d].doc: %w", i, err)
		}

		switch step.Op {
		case OpInsert:
			d := append(bson.D{{Key: "_id", Value: step.ID}}, body...)
			records = append(records, testutil.Insert(ns, ts, d))
		case OpUpdate:
			descriptor, err := nodeDocument(&step.Update)
			if err != nil {
				return nil, fmt.Errorf("oplog[%d].update: %w", i, err)
			}
			records = append(records, testutil.Update(ns, ts, step.ID, descriptor))
		case OpDelete:
			rec := testutil.Delete(ns, ts, step.ID)
			rec.Payload = append(rec.Payload, body...)
			records = append(records, rec)
		case OpNoop:
			records = append(records, testutil.Noop(ns, ts))
		default:
			return nil, fmt.Errorf("oplog[%d]: unknown op %q", i, step.Op)
		}
	}
	return records, nil
}

// await blocks until the engine has drained the source. A stalled channel
// is skipped or ends the run, depending on policy.
func (h *Harness) await(eng *engine.Engine, policy string) error {
	waitDone := make(chan error, 1)
	go func() { waitDone <- eng.Wait() }()

	ticker := time.NewTicker(stallPoll)
	defer ticker.Stop()
	deadline := time.NewTimer(RunTimeout)
	defer deadline.Stop()

	for {
		select {
		case err := <-waitDone:
			if err != nil && !engine.IsTailReadError(err) {
				return err
			}
			return nil
		case <-ticker.C:
			for _, ch := range eng.Channels() {
				if ch.State != engine.StateStalled.String() {
					continue
				}
				if policy == OnStallSkip {
					if err := eng.Resolve(ch.Collection, engine.ResolutionSkip); err != nil {
						slog.Debug("scenario skip not applied", "collection", ch.Collection, "error", err)
					}
					continue
				}
				eng.Stop()
			}
		case <-deadline.C:
			eng.Stop()
			return fmt.Errorf("did not finish within %s", RunTimeout)
		}
	}
}

// collect reads back the history of every document the scenario touched
// and the resulting checkpoints.
func (h *Harness) collect(ctx context.Context, s *Scenario, r *Result) error {
	prefix := engine.DefaultPrefix
	if s.Prefix != "" {
		prefix = s.Prefix
	}

	for _, coll := range s.Collections {
		seen := make(map[string]bool)
		for _, step := range s.Oplog {
			if step.Collection != coll || step.ID == nil {
				continue
			}
			id := doc.FromAny(step.ID)
			key := canonicalString(id)
			if seen[key] {
				continue
			}
			seen[key] = true

			snaps, err := h.store.History(ctx, engine.HistoryName(prefix, coll), id)
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}
			r.History = append(r.History, DocumentHistory{Collection: coll, DocID: id, Snapshots: snaps})
		}
	}

	cps, err := engine.ResolveCheckpoints(ctx, h.store, prefix, s.Collections)
	if err != nil {
		return fmt.Errorf("failed to resolve checkpoints: %w", err)
	}
	r.Checkpoints = cps
	return nil
}
