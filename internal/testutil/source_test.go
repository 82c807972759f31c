package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/mongoversioning/internal/oplog"
)

func TestScriptedSource_AppliesFilter(t *testing.T) {
	src := NewScriptedSource(
		Insert("test.patients", oplog.Timestamp{T: 1, I: 1}, bson.D{{Key: "_id", Value: "p1"}}),
		Insert("test.patients", oplog.Timestamp{T: 2, I: 1}, bson.D{{Key: "_id", Value: "p2"}}),
		Insert("test.other", oplog.Timestamp{T: 3, I: 1}, bson.D{{Key: "_id", Value: "o1"}}),
	)
	f := oplog.BuildFilter("test", []oplog.Bound{{Collection: "patients", After: oplog.Timestamp{T: 1, I: 1}}})

	cur, err := src.Open(context.Background(), f)
	require.NoError(t, err)

	rec, err := cur.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, oplog.Timestamp{T: 2, I: 1}, rec.TS)

	_, err = cur.Next(context.Background())
	assert.True(t, oplog.IsEnd(err))

	assert.Equal(t, int64(1), src.Reads())
	assert.Len(t, src.Filters(), 1)
}

func TestScriptedSource_FailWith(t *testing.T) {
	boom := errors.New("boom")
	src := NewScriptedSource().FailWith(boom)

	cur, err := src.Open(context.Background(), oplog.BuildFilter("test", nil))
	require.NoError(t, err)

	_, err = cur.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestScriptedSource_LiveBlocksUntilCancel(t *testing.T) {
	src := NewScriptedSource().Live()
	cur, err := src.Open(context.Background(), oplog.BuildFilter("test", nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cur.Next(ctx)
		errCh <- err
	}()

	select {
	case <-errCh:
		t.Fatal("live cursor returned before cancel")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("live cursor did not return after cancel")
	}
}

func TestScriptedSource_FailOpen(t *testing.T) {
	src := NewScriptedSource().FailOpen(errors.New("no route to host"))

	_, err := src.Open(context.Background(), oplog.BuildFilter("test", nil))

	assert.Error(t, err)
}
