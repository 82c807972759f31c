package harness

import (
	"github.com/roach88/mongoversioning/internal/doc"
	"github.com/roach88/mongoversioning/internal/engine"
	"github.com/roach88/mongoversioning/internal/store"
)

// DocumentHistory is every stored snapshot of one source document.
type DocumentHistory struct {
	Collection string
	DocID      doc.Value
	Snapshots  []store.Snapshot
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool

	// RunID is the engine session id.
	RunID string

	// History holds the snapshots of every document the scenario touched,
	// grouped by collection in scenario order, documents in order of first
	// appearance.
	History []DocumentHistory

	// Channels is the state of each collection channel when the run ended.
	Channels []engine.ChannelStatus

	// Checkpoints are the resume points resolved after the run.
	Checkpoints []engine.CollectionConfig

	// EngineErrors are the errors the engine reported while running.
	EngineErrors []string

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// historyOf returns the snapshots of one document, or nil.
func (r *Result) historyOf(collection string, id doc.Value) []store.Snapshot {
	key := canonicalString(id)
	for _, h := range r.History {
		if h.Collection == collection && canonicalString(h.DocID) == key {
			return h.Snapshots
		}
	}
	return nil
}

// channel returns the status of a collection channel.
func (r *Result) channel(collection string) (engine.ChannelStatus, bool) {
	for _, ch := range r.Channels {
		if ch.Collection == collection {
			return ch, true
		}
	}
	return engine.ChannelStatus{}, false
}

// canonicalString renders v as canonical JSON, or a placeholder when v has
// no canonical form.
func canonicalString(v doc.Value) string {
	data, err := doc.MarshalCanonical(v)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return string(data)
}
