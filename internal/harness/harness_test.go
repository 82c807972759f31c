package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mongoversioning/internal/doc"
	"github.com/roach88/mongoversioning/internal/oplog"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func runScenario(t *testing.T, s *Scenario) *Result {
	t.Helper()
	result, err := Run(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	return result
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			result := runScenario(t, loadTestdata(t, name))
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_FixedRunID(t *testing.T) {
	result := runScenario(t, loadTestdata(t, "patient_lifecycle"))

	assert.Equal(t, "scenario-patient_lifecycle", result.RunID)
}

func TestRun_HistoryOrder(t *testing.T) {
	result := runScenario(t, loadTestdata(t, "interleaved_collections"))

	require.Len(t, result.History, 2)
	assert.Equal(t, "patients", result.History[0].Collection)
	assert.Equal(t, doc.String("p1"), result.History[0].DocID)
	assert.Equal(t, "visits", result.History[1].Collection)
	assert.Equal(t, doc.Int(1), result.History[1].DocID)

	var versions []int64
	for _, s := range result.History[0].Snapshots {
		versions = append(versions, s.Version)
	}
	assert.Equal(t, []int64{0, 1, 2}, versions)
}

func TestRun_SkipReportsEngineError(t *testing.T) {
	result := runScenario(t, loadTestdata(t, "missing_base_skip"))

	require.NotEmpty(t, result.EngineErrors)
	assert.Contains(t, result.EngineErrors[0], "MISSING_BASE_DOCUMENT")
}

func TestRun_StopLeavesChannelStalled(t *testing.T) {
	result := runScenario(t, loadTestdata(t, "missing_base_stop"))

	ch, ok := result.channel("patients")
	require.True(t, ok)
	assert.Equal(t, "stalled", ch.State)
	assert.Contains(t, ch.LastError, "MISSING_BASE_DOCUMENT")
}

func TestRun_FailingAssertions(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_expectations
collections: [patients]
oplog:
  - op: insert
    collection: patients
    id: p1
    doc: { name: Ada }
assertions:
  - type: version_count
    collection: patients
    id: p1
    count: 2
  - type: latest
    collection: patients
    id: p1
    expect: { name: Grace }
  - type: checkpoint
    collection: patients
    ts: { t: 1700000000, i: 1 }
`))
	require.NoError(t, err)

	result := runScenario(t, s)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "assertions[0]")
	assert.Contains(t, result.Errors[0], "1 snapshots")
	assert.Contains(t, result.Errors[1], `field name = "Grace"`)
}

func TestRun_CustomPrefix(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: custom_prefix
collections: [patients]
prefix: audit_
oplog:
  - op: insert
    collection: patients
    id: 7
    doc: { name: Ada }
assertions:
  - type: latest
    collection: patients
    id: 7
    version: 0
`))
	require.NoError(t, err)

	result := runScenario(t, s)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, oplog.Timestamp{T: 1700000000, I: 1}, result.Checkpoints[0].LowerBound)
}
