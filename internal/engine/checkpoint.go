package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/mongoversioning/internal/oplog"
	"github.com/roach88/mongoversioning/internal/store"
)

// CollectionConfig is a versioned collection and the resume point of its tail.
// Only oplog entries strictly after LowerBound are read for it.
type CollectionConfig struct {
	Name       string          `json:"name"`
	LowerBound oplog.Timestamp `json:"lower_bound"`
}

// HistoryName returns the history collection written for a source collection.
func HistoryName(prefix, name string) string {
	return prefix + name
}

// ResolveCheckpoints computes the resume point of every named collection.
//
// The lower bound of a collection is the versioning_ts of its history
// snapshot with the greatest timestamp, or oplog.Zero when it has none.
// Lookups run concurrently; each writes only its own result slot, so the
// output keeps the order of names.
//
// Any failed lookup fails the whole resolution.
func ResolveCheckpoints(ctx context.Context, st store.VersionStore, prefix string, names []string) ([]CollectionConfig, error) {
	out := make([]CollectionConfig, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			snap, ok, err := st.LastSnapshot(gctx, HistoryName(prefix, name))
			if err != nil {
				return fmt.Errorf("checkpoint %s: %w", name, err)
			}

			bound := oplog.Zero
			if ok {
				bound = snap.TS
			}
			out[i] = CollectionConfig{Name: name, LowerBound: bound}

			slog.Debug("checkpoint resolved",
				"collection", name,
				"lower_bound", bound.String(),
				"fresh", !ok,
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// Bounds converts resolved collections into tailing query bounds.
func Bounds(cols []CollectionConfig) []oplog.Bound {
	out := make([]oplog.Bound, len(cols))
	for i, c := range cols {
		out[i] = oplog.Bound{Collection: c.Name, After: c.LowerBound}
	}
	return out
}
