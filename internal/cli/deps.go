package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/mongoversioning/internal/config"
	"github.com/roach88/mongoversioning/internal/oplog"
	"github.com/roach88/mongoversioning/internal/store"
)

// openStore opens the version store selected by cfg.Store.
func openStore(ctx context.Context, cfg config.Config) (store.VersionStore, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		slog.Info("opening sqlite store", "path", cfg.SQLitePath)
		return store.OpenSQLite(cfg.SQLitePath)
	case config.StoreMongo:
		slog.Info("opening mongo store")
		return store.OpenMongo(ctx, cfg.URI)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// openSource returns the oplog source selected by cfg: a dumped oplog file
// when oplog_file is set, the replica set oplog otherwise.
func openSource(cfg config.Config) oplog.Source {
	if cfg.OplogFile != "" {
		slog.Info("reading oplog from file", "path", cfg.OplogFile)
		return oplog.NewFileSource(cfg.OplogFile)
	}
	return oplog.NewMongoSource(cfg.OplogURI, cfg.OplogCollection)
}

// closeStore closes st, logging rather than returning the error.
func closeStore(st store.VersionStore) {
	if err := st.Close(context.Background()); err != nil {
		slog.Error("error closing store", "error", err)
	}
}
