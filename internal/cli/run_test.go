package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/mongoversioning/internal/config"
	"github.com/roach88/mongoversioning/internal/engine"
	"github.com/roach88/mongoversioning/internal/oplog"
	"github.com/roach88/mongoversioning/internal/testutil"
)

// runFixture is a dumped oplog plus an empty sqlite history database.
type runFixture struct {
	dir       string
	dbPath    string
	oplogPath string
}

// clinicOplog is the oplog used by the command tests. Timestamps are
// (1700000000, 1..5) in order.
func clinicOplog() []oplog.Record {
	clock := testutil.NewDeterministicClock()
	return []oplog.Record{
		testutil.Insert("test.patients", clock.Next(), bson.D{
			{Key: "_id", Value: "p1"}, {Key: "name", Value: "Ada"}, {Key: "age", Value: 36},
		}),
		testutil.Insert("test.visits", clock.Next(), bson.D{
			{Key: "_id", Value: 1}, {Key: "patient", Value: "p1"},
		}),
		testutil.Update("test.patients", clock.Next(), "p1", bson.D{
			{Key: "$set", Value: bson.D{{Key: "age", Value: 37}}},
		}),
		testutil.Insert("test.billing", clock.Next(), bson.D{
			{Key: "_id", Value: "b1"}, {Key: "amount", Value: 120},
		}),
		testutil.Delete("test.patients", clock.Next(), "p1"),
	}
}

func newRunFixture(t *testing.T, records []oplog.Record) runFixture {
	t.Helper()
	dir := t.TempDir()
	f := runFixture{
		dir:       dir,
		dbPath:    filepath.Join(dir, "history.db"),
		oplogPath: filepath.Join(dir, "oplog.bson"),
	}
	require.NoError(t, oplog.WriteFile(f.oplogPath, records))
	return f
}

func (f runFixture) rootOptions(format string) *RootOptions {
	return &RootOptions{
		Format: format,
		Overrides: config.Config{
			Store:      config.StoreSQLite,
			SQLitePath: f.dbPath,
			OplogFile:  f.oplogPath,
		},
		Collections: []string{"patients", "visits"},
	}
}

type runResponse struct {
	Status string     `json:"status"`
	RunID  string     `json:"run_id"`
	Data   runSummary `json:"data"`
}

func runOnce(t *testing.T, ctx context.Context, opts *RunOptions) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRunCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRun_VersionsOplogFile(t *testing.T) {
	f := newRunFixture(t, clinicOplog())
	opts := &RunOptions{
		RootOptions: f.rootOptions("json"),
		RunIDs:      engine.NewFixedGenerator("run-1"),
	}

	out, err := runOnce(t, context.Background(), opts)
	require.NoError(t, err)

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.Data.Channels, 2)

	patients, visits := resp.Data.Channels[0], resp.Data.Channels[1]
	assert.Equal(t, "patients", patients.Collection)
	assert.Equal(t, "idle", patients.State)
	assert.Equal(t, int64(3), patients.Processed)
	assert.Equal(t, oplog.Timestamp{T: testutil.DefaultEpoch, I: 5}, patients.LastTS)

	assert.Equal(t, "visits", visits.Collection)
	assert.Equal(t, int64(1), visits.Processed)
}

func TestRun_SecondRunResumes(t *testing.T) {
	f := newRunFixture(t, clinicOplog())

	_, err := runOnce(t, context.Background(), &RunOptions{
		RootOptions: f.rootOptions("json"),
		RunIDs:      engine.NewFixedGenerator("run-1"),
	})
	require.NoError(t, err)

	out, err := runOnce(t, context.Background(), &RunOptions{
		RootOptions: f.rootOptions("json"),
		RunIDs:      engine.NewFixedGenerator("run-2"),
	})
	require.NoError(t, err)

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "run-2", resp.RunID)
	// every record is at or before a checkpoint, so no channel is started
	assert.Empty(t, resp.Data.Channels)
}

func TestRun_TextSummary(t *testing.T) {
	f := newRunFixture(t, clinicOplog())

	out, err := runOnce(t, context.Background(), &RunOptions{
		RootOptions: f.rootOptions("text"),
		RunIDs:      engine.NewFixedGenerator("run-1"),
	})
	require.NoError(t, err)

	assert.Contains(t, out, "run run-1 finished")
	assert.Contains(t, out, "patients")
	assert.Contains(t, out, "processed=3")
	assert.Contains(t, out, "last_ts=Timestamp(1700000000, 5)")
}

func TestRun_WithMetricsServer(t *testing.T) {
	f := newRunFixture(t, clinicOplog())
	ro := f.rootOptions("json")
	ro.Overrides.MetricsAddr = "127.0.0.1:0"

	_, err := runOnce(t, context.Background(), &RunOptions{RootOptions: ro})

	require.NoError(t, err)
}

func TestRun_InvalidConfig(t *testing.T) {
	f := newRunFixture(t, nil)
	ro := f.rootOptions("json")
	ro.Collections = nil

	_, err := runOnce(t, context.Background(), &RunOptions{RootOptions: ro})

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRun_StoreUnavailable(t *testing.T) {
	f := newRunFixture(t, nil)
	ro := f.rootOptions("json")
	ro.Overrides.SQLitePath = filepath.Join(f.dir, "missing", "dir", "history.db")

	_, err := runOnce(t, context.Background(), &RunOptions{RootOptions: ro})

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open store")
}

func TestRun_TailReadFailure(t *testing.T) {
	f := newRunFixture(t, nil)
	src := testutil.NewScriptedSource(
		testutil.Insert("test.patients", oplog.Timestamp{T: testutil.DefaultEpoch, I: 1}, bson.D{{Key: "_id", Value: "p1"}}),
	).FailWith(errors.New("cursor killed"))

	_, err := runOnce(t, context.Background(), &RunOptions{
		RootOptions: f.rootOptions("json"),
		Source:      src,
		RunIDs:      engine.NewFixedGenerator("run-1"),
	})

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, engine.IsTailReadError(err))
}

func TestRun_StalledChannelAtShutdown(t *testing.T) {
	f := newRunFixture(t, nil)
	// an update with no base snapshot stalls the patients channel
	src := testutil.NewScriptedSource(
		testutil.Update("test.patients", oplog.Timestamp{T: testutil.DefaultEpoch, I: 1}, "ghost", bson.D{
			{Key: "$set", Value: bson.D{{Key: "age", Value: 1}}},
		}),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, err := runOnce(t, ctx, &RunOptions{
		RootOptions: f.rootOptions("json"),
		Source:      src,
		RunIDs:      engine.NewFixedGenerator("run-1"),
	})

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "stalled at shutdown")

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Channels, 1)
	assert.Equal(t, "stalled", resp.Data.Channels[0].State)
	assert.Contains(t, resp.Data.Channels[0].LastError, "MISSING_BASE_DOCUMENT")
}
