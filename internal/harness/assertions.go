package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/mongoversioning/internal/doc"
	"github.com/roach88/mongoversioning/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	History  []store.Snapshot // Snapshots of the document, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.History) > 0 {
		fmt.Fprintf(&buf, "\nHistory:\n")
		for i, s := range e.History {
			fmt.Fprintf(&buf, "  [%d] %s\n", i, canonicalString(s.Document()))
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against r and returns the
// failure messages in assertion order.
func EvaluateAssertions(r *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(r, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertVersionCount:
		return assertVersionCount(r, a)
	case AssertLatest:
		return assertLatest(r, a)
	case AssertCheckpoint:
		return assertCheckpoint(r, a)
	case AssertChannelState:
		return assertChannelState(r, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertVersionCount checks the number of snapshots stored for a document.
func assertVersionCount(r *Result, a Assertion) error {
	snaps := r.historyOf(a.Collection, doc.FromAny(a.ID))
	if len(snaps) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertVersionCount,
		Expected: fmt.Sprintf("%d snapshots of %s/%s", a.Count, a.Collection, canonicalString(doc.FromAny(a.ID))),
		Actual:   fmt.Sprintf("%d snapshots", len(snaps)),
		History:  snaps,
	}
}

// assertLatest checks the newest snapshot of a document. Expect is a subset
// match on the body; values compare by canonical JSON.
func assertLatest(r *Result, a Assertion) error {
	id := doc.FromAny(a.ID)
	snaps := r.historyOf(a.Collection, id)
	if len(snaps) == 0 {
		return &AssertionError{
			Type:     AssertLatest,
			Expected: fmt.Sprintf("a snapshot of %s/%s", a.Collection, canonicalString(id)),
			Actual:   "no history",
		}
	}
	latest := snaps[len(snaps)-1]

	fail := func(expected, actual string) error {
		return &AssertionError{Type: AssertLatest, Expected: expected, Actual: actual, History: snaps}
	}

	if latest.Deleted != a.Deleted {
		return fail(fmt.Sprintf("deleted=%t", a.Deleted), fmt.Sprintf("deleted=%t", latest.Deleted))
	}
	if a.Version != nil && (latest.Deleted || latest.Version != *a.Version) {
		actual := fmt.Sprintf("version %d", latest.Version)
		if latest.Deleted {
			actual = "tombstone without version"
		}
		return fail(fmt.Sprintf("version %d", *a.Version), actual)
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		want := canonicalString(doc.FromAny(a.Expect[k]))
		got, ok := latest.Body.Get(k)
		if !ok {
			return fail(fmt.Sprintf("field %s = %s", k, want), "field missing")
		}
		if canonicalString(got) != want {
			return fail(fmt.Sprintf("field %s = %s", k, want), fmt.Sprintf("field %s = %s", k, canonicalString(got)))
		}
	}
	return nil
}

// assertCheckpoint checks the resume point of a collection after the run.
func assertCheckpoint(r *Result, a Assertion) error {
	for _, c := range r.Checkpoints {
		if c.Name != a.Collection {
			continue
		}
		if c.LowerBound == *a.TS {
			return nil
		}
		return &AssertionError{
			Type:     AssertCheckpoint,
			Expected: fmt.Sprintf("%s resumes after %s", a.Collection, a.TS),
			Actual:   fmt.Sprintf("resumes after %s", c.LowerBound),
		}
	}
	return &AssertionError{
		Type:     AssertCheckpoint,
		Expected: fmt.Sprintf("checkpoint for %s", a.Collection),
		Actual:   "collection is not versioned",
	}
}

// assertChannelState checks the final state of a collection channel. A
// collection that never received an entry has no channel and counts as idle.
func assertChannelState(r *Result, a Assertion) error {
	state := "idle"
	if ch, ok := r.channel(a.Collection); ok {
		state = ch.State
	}
	if state == a.State {
		return nil
	}
	return &AssertionError{
		Type:     AssertChannelState,
		Expected: fmt.Sprintf("%s channel %s", a.Collection, a.State),
		Actual:   state,
	}
}
