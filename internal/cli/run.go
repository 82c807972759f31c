package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/mongoversioning/internal/engine"
	"github.com/roach88/mongoversioning/internal/httpapi"
	"github.com/roach88/mongoversioning/internal/oplog"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// Source overrides the oplog source selected by the config (for testing).
	Source oplog.Source

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}
	return newRunCommand(opts)
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Tail the oplog and append history snapshots",
		Long: `Tail the oplog and append a history snapshot for every insert, update
and delete of the configured collections.

Each collection resumes strictly after the newest snapshot already in its
history collection. With --oplog-file the run ends once the file is
exhausted; against a replica set it runs until interrupted.

Example:
  mongoversioning run --collection patients --collection visits
  mongoversioning run -c versioning.yaml --metrics-addr :9102
  mongoversioning run --store sqlite --oplog-file dump/oplog.bson --collection patients`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}
}

// runSummary is printed once the engine has stopped.
type runSummary struct {
	RunID    string                 `json:"run_id"`
	Channels []engine.ChannelStatus `json:"channels"`
}

func (s runSummary) renderText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "run %s finished\n", s.RunID); err != nil {
		return err
	}
	for _, ch := range s.Channels {
		line := fmt.Sprintf("  %-24s %-10s processed=%d buffered=%d last_ts=%s",
			ch.Collection, ch.State, ch.Processed, ch.Buffered, ch.LastTS)
		if ch.LastError != "" {
			line += " error=" + ch.LastError
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	opts.configureLogging(cmd.ErrOrStderr())

	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	database, err := cfg.Database()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore(st)

	src := opts.Source
	if src == nil {
		src = openSource(cfg)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engOpts := []engine.Option{
		engine.WithPrefix(cfg.Prefix),
		engine.WithChannelCapacity(cfg.ChannelCapacity),
		engine.WithMetrics(reg),
	}
	if opts.RunIDs != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	eng := engine.New(st, src, database, cfg.Names(), engOpts...)

	if err := eng.Connect(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}

	if cfg.MetricsAddr != "" {
		srv := httpapi.NewServer(eng, reg, cfg.MetricsAddr)
		if err := srv.Start(); err != nil {
			return WrapExitError(ExitCommandError, "failed to start http server", err)
		}
		defer func() {
			if err := srv.Stop(); err != nil {
				slog.Error("error stopping http server", "error", err)
			}
		}()
		slog.Info("http server listening", "addr", srv.Addr())
	}

	if err := eng.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	finished := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			eng.Stop()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
			eng.Stop()
		case <-finished:
		}
	}()

	waitErr := eng.Wait()
	close(finished)
	summary := runSummary{RunID: eng.RunID(), Channels: eng.Channels()}
	eng.Stop()

	if waitErr != nil {
		return WrapExitError(ExitFailure, "oplog tail failed", waitErr)
	}

	stalled := 0
	for _, ch := range summary.Channels {
		if ch.State == engine.StateStalled.String() {
			slog.Warn("channel stalled at shutdown", "collection", ch.Collection, "error", ch.LastError)
			stalled++
		}
	}

	if err := opts.formatter(cmd).SuccessWithRun(summary.RunID, summary); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	if stalled > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d channel(s) stalled at shutdown", stalled))
	}
	return nil
}
