package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mongoversioning/internal/engine"
	"github.com/roach88/mongoversioning/internal/oplog"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	FromZero bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the oplog tailing query",
		Long: `Print the oplog query the next run would issue, as relaxed extended
JSON. Each versioned collection contributes one (ns, ts > bound) disjunct.

Example:
  mongoversioning query --collection patients --collection visits
  mongoversioning query --from-zero --collection patients`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.FromZero, "from-zero", false, "ignore stored history and start every collection at zero")

	return cmd
}

// queryResult is the rendered tailing query.
type queryResult struct {
	Filter string `json:"filter"`
}

func (r queryResult) renderText(w io.Writer) error {
	_, err := fmt.Fprintln(w, r.Filter)
	return err
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	opts.configureLogging(cmd.ErrOrStderr())

	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	database, err := cfg.Database()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	var cols []engine.CollectionConfig
	if opts.FromZero {
		cols = zeroCheckpoints(cfg.Names())
	} else {
		cols, err = resolveCheckpoints(commandContext(cmd), cfg)
		if err != nil {
			return err
		}
	}

	rendered, err := oplog.BuildFilter(database, engine.Bounds(cols)).ExtJSON()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render query", err)
	}

	if err := opts.formatter(cmd).Success(queryResult{Filter: rendered}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	return nil
}
