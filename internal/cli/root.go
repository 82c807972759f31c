package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/mongoversioning/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// ConfigPath is an optional YAML file loaded over the defaults.
	ConfigPath string

	// Overrides are flag values applied over the file. Empty fields are
	// left alone.
	Overrides   config.Config
	Collections []string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mongoversioning CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mongoversioning",
		Short: "Append-only version history from the MongoDB oplog",
		Long: `mongoversioning tails a MongoDB replication oplog and appends a snapshot
to history_<collection> for every insert, update and delete of the
configured collections.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")

	// Config overrides
	pf.StringVar(&opts.Overrides.URI, "uri", "", "source database uri")
	pf.StringVar(&opts.Overrides.OplogURI, "oplog-uri", "", "oplog database uri")
	pf.StringVar(&opts.Overrides.OplogCollection, "oplog-collection", "", "oplog collection name")
	pf.StringVar(&opts.Overrides.OplogFile, "oplog-file", "", "replay a mongodump oplog.bson file instead of tailing")
	pf.StringSliceVar(&opts.Collections, "collection", nil, "collection to version (repeatable)")
	pf.StringVar(&opts.Overrides.Prefix, "prefix", "", "history collection prefix")
	pf.StringVar(&opts.Overrides.Store, "store", "", "version store backend (mongo|sqlite)")
	pf.StringVar(&opts.Overrides.SQLitePath, "sqlite-path", "", "history database file for the sqlite store")
	pf.IntVar(&opts.Overrides.ChannelCapacity, "channel-capacity", 0, "buffer size of each collection channel")
	pf.StringVar(&opts.Overrides.MetricsAddr, "metrics-addr", "", "serve /health, /metrics and /channels on this address")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCheckpointsCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// LoadConfig builds the effective configuration: defaults, then the config
// file, then flags. The result is validated.
func (o *RootOptions) LoadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	overrides := o.Overrides
	for _, name := range o.Collections {
		overrides.Collections = append(overrides.Collections, config.CollectionConfig{Name: name})
	}
	cfg.Merge(overrides)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// configureLogging installs the process logger on w. Verbose switches to
// debug level.
func (o *RootOptions) configureLogging(w io.Writer) {
	logLevel := slog.LevelInfo
	if o.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
