package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/mongoversioning/internal/doc"
)

// HistorySnapshot renders a result as canonical JSON for golden comparison:
// the stored documents of every touched document plus final channel states.
func HistorySnapshot(name string, r *Result) ([]byte, error) {
	history := make(doc.Array, 0, len(r.History))
	for _, h := range r.History {
		snaps := make(doc.Array, 0, len(h.Snapshots))
		for _, s := range h.Snapshots {
			snaps = append(snaps, s.Document())
		}
		history = append(history, doc.Object{
			{Key: "collection", Value: doc.String(h.Collection)},
			{Key: "id", Value: h.DocID},
			{Key: "snapshots", Value: snaps},
		})
	}

	channels := make(doc.Array, 0, len(r.Channels))
	for _, ch := range r.Channels {
		channels = append(channels, doc.Object{
			{Key: "collection", Value: doc.String(ch.Collection)},
			{Key: "processed", Value: doc.Int(ch.Processed)},
			{Key: "state", Value: doc.String(ch.State)},
		})
	}

	return doc.MarshalCanonical(doc.Object{
		{Key: "scenario", Value: doc.String(name)},
		{Key: "history", Value: history},
		{Key: "channels", Value: channels},
	})
}

// GoldenDir is the directory, next to the scenario files, holding their
// golden histories.
const GoldenDir = "golden"

// GoldenPath returns the golden file of a scenario file:
// golden/{file name without extension}.golden in the same directory.
func GoldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), GoldenDir, name+".golden")
}

// WriteGolden renders r and writes it to path, creating the directory.
func WriteGolden(path, name string, r *Result) error {
	data, err := HistorySnapshot(name, r)
	if err != nil {
		return fmt.Errorf("failed to render history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// MatchGolden reports whether r renders to exactly the bytes stored at path.
func MatchGolden(path, name string, r *Result) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := HistorySnapshot(name, r)
	if err != nil {
		return false, fmt.Errorf("failed to render history: %w", err)
	}
	return bytes.Equal(want, got), nil
}

// RunWithGolden executes a scenario and compares its history against a
// golden file stored in testdata/scenarios/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Assertion failures are reported through t as well.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, t.TempDir())
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	data, err := HistorySnapshot(scenario.Name, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(filepath.Join("testdata", "scenarios", GoldenDir)),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result, nil
}
