package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mongoversioning/internal/doc"
	"github.com/roach88/mongoversioning/internal/engine"
	"github.com/roach88/mongoversioning/internal/oplog"
	"github.com/roach88/mongoversioning/internal/store"
)

func int64p(v int64) *int64 { return &v }

// sampleResult has p1 inserted and updated, and p2 inserted then deleted.
func sampleResult() *Result {
	ts := func(i uint32) oplog.Timestamp { return oplog.Timestamp{T: 100, I: i} }
	r := NewResult()
	r.History = []DocumentHistory{
		{
			Collection: "patients",
			DocID:      doc.String("p1"),
			Snapshots: []store.Snapshot{
				{DocID: doc.String("p1"), TS: ts(1), Version: 0, Body: doc.Object{{Key: "age", Value: doc.Int(36)}}},
				{DocID: doc.String("p1"), TS: ts(3), Version: 1, Body: doc.Object{
					{Key: "age", Value: doc.Int(37)},
					{Key: "tags", Value: doc.Array{doc.String("a")}},
				}},
			},
		},
		{
			Collection: "patients",
			DocID:      doc.Int(2),
			Snapshots: []store.Snapshot{
				{DocID: doc.Int(2), TS: ts(2), Version: 0, Body: doc.Object{}},
				{DocID: doc.Int(2), TS: ts(4), Deleted: true, Body: doc.Object{}},
			},
		},
	}
	r.Channels = []engine.ChannelStatus{{Collection: "patients", State: "idle", Processed: 4}}
	r.Checkpoints = []engine.CollectionConfig{{Name: "patients", LowerBound: ts(4)}}
	return r
}

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"count ok", Assertion{Type: AssertVersionCount, Collection: "patients", ID: "p1", Count: 2}, ""},
		{"count int id", Assertion{Type: AssertVersionCount, Collection: "patients", ID: 2, Count: 2}, ""},
		{"count unknown doc", Assertion{Type: AssertVersionCount, Collection: "patients", ID: "p9", Count: 0}, ""},
		{"count wrong", Assertion{Type: AssertVersionCount, Collection: "patients", ID: "p1", Count: 3}, "2 snapshots"},
		{"latest version", Assertion{Type: AssertLatest, Collection: "patients", ID: "p1", Version: int64p(1)}, ""},
		{"latest wrong version", Assertion{Type: AssertLatest, Collection: "patients", ID: "p1", Version: int64p(0)}, "version 1"},
		{"latest fields", Assertion{Type: AssertLatest, Collection: "patients", ID: "p1",
			Expect: map[string]interface{}{"age": 37, "tags": []interface{}{"a"}}}, ""},
		{"latest wrong field", Assertion{Type: AssertLatest, Collection: "patients", ID: "p1",
			Expect: map[string]interface{}{"age": 36}}, "field age = 37"},
		{"latest missing field", Assertion{Type: AssertLatest, Collection: "patients", ID: "p1",
			Expect: map[string]interface{}{"name": "Ada"}}, "field missing"},
		{"latest tombstone", Assertion{Type: AssertLatest, Collection: "patients", ID: 2, Deleted: true}, ""},
		{"latest tombstone has no version", Assertion{Type: AssertLatest, Collection: "patients", ID: 2, Deleted: true,
			Version: int64p(1)}, "tombstone without version"},
		{"latest not deleted", Assertion{Type: AssertLatest, Collection: "patients", ID: "p1", Deleted: true}, "deleted=false"},
		{"latest no history", Assertion{Type: AssertLatest, Collection: "patients", ID: "p9", Version: int64p(0)}, "no history"},
		{"checkpoint", Assertion{Type: AssertCheckpoint, Collection: "patients", TS: &oplog.Timestamp{T: 100, I: 4}}, ""},
		{"checkpoint wrong", Assertion{Type: AssertCheckpoint, Collection: "patients", TS: &oplog.Timestamp{T: 100, I: 3}},
			"resumes after Timestamp(100, 4)"},
		{"checkpoint unversioned", Assertion{Type: AssertCheckpoint, Collection: "visits", TS: &oplog.Timestamp{}},
			"not versioned"},
		{"channel idle", Assertion{Type: AssertChannelState, Collection: "patients", State: "idle"}, ""},
		{"channel never started", Assertion{Type: AssertChannelState, Collection: "visits", State: "idle"}, ""},
		{"channel wrong", Assertion{Type: AssertChannelState, Collection: "patients", State: "stalled"}, "Actual: idle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestAssertionError_IncludesHistory(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertVersionCount, Collection: "patients", ID: "p1", Count: 5},
	})

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Assertion failed: version_count")
	assert.Contains(t, errs[0], "History:")
	assert.Contains(t, errs[0], `"versioning_version":1`)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")

	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
