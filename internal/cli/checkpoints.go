package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mongoversioning/internal/config"
	"github.com/roach88/mongoversioning/internal/engine"
	"github.com/roach88/mongoversioning/internal/oplog"
)

// NewCheckpointsCommand creates the checkpoints command.
func NewCheckpointsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints",
		Short: "Show the resume point of every versioned collection",
		Long: `Show where the next run resumes each versioned collection: the
timestamp of the newest snapshot in its history collection, or zero when
the collection has no history yet.

Example:
  mongoversioning checkpoints --collection patients
  mongoversioning checkpoints -c versioning.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpoints(rootOpts, cmd)
		},
	}
}

// checkpointsResult lists resolved resume points in config order.
type checkpointsResult struct {
	Prefix      string                    `json:"prefix"`
	Collections []engine.CollectionConfig `json:"collections"`
}

func (r checkpointsResult) renderText(w io.Writer) error {
	for _, c := range r.Collections {
		state := "resume"
		if c.LowerBound.IsZero() {
			state = "fresh"
		}
		if _, err := fmt.Fprintf(w, "%-24s %-6s after %s (%s)\n",
			c.Name, state, c.LowerBound, engine.HistoryName(r.Prefix, c.Name)); err != nil {
			return err
		}
	}
	return nil
}

func runCheckpoints(opts *RootOptions, cmd *cobra.Command) error {
	opts.configureLogging(cmd.ErrOrStderr())

	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	cols, err := resolveCheckpoints(commandContext(cmd), cfg)
	if err != nil {
		return err
	}

	result := checkpointsResult{Prefix: cfg.Prefix, Collections: cols}
	if err := opts.formatter(cmd).Success(result); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	return nil
}

// resolveCheckpoints opens the configured store just long enough to read
// every collection's resume point.
func resolveCheckpoints(ctx context.Context, cfg config.Config) ([]engine.CollectionConfig, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore(st)

	cols, err := engine.ResolveCheckpoints(ctx, st, cfg.Prefix, cfg.Names())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resolve checkpoints", err)
	}
	return cols, nil
}

// zeroCheckpoints starts every collection at the beginning of the oplog.
func zeroCheckpoints(names []string) []engine.CollectionConfig {
	out := make([]engine.CollectionConfig, len(names))
	for i, name := range names {
		out[i] = engine.CollectionConfig{Name: name, LowerBound: oplog.Zero}
	}
	return out
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
