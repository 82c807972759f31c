package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/mongoversioning/internal/doc"
	"github.com/roach88/mongoversioning/internal/engine"
)

// Document id types accepted by the history command.
const (
	IDTypeString   = "string"
	IDTypeObjectID = "oid"
	IDTypeInt      = "int"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	IDType string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <collection> <id>",
		Short: "Print every stored snapshot of one document",
		Long: `Print the snapshots of one source document in the order they were
appended, one canonical JSON document per line.

Example:
  mongoversioning history patients p-1042
  mongoversioning history visits 65f1c0ffee0ddba11c0ffee0 --id-type oid
  mongoversioning history labs 7 --id-type int --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.IDType, "id-type", IDTypeString, "type of the document id (string|oid|int)")

	return cmd
}

// historyResult holds canonical snapshot documents in append order.
type historyResult struct {
	Collection string            `json:"collection"`
	Snapshots  []json.RawMessage `json:"snapshots"`
}

func (r historyResult) renderText(w io.Writer) error {
	for _, s := range r.Snapshots {
		if _, err := fmt.Fprintln(w, string(s)); err != nil {
			return err
		}
	}
	return nil
}

// parseDocID converts a command-line id into the document id value.
func parseDocID(raw, idType string) (doc.Value, error) {
	switch idType {
	case IDTypeString:
		return doc.String(raw), nil
	case IDTypeObjectID:
		oid, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid object id %q: %w", raw, err)
		}
		return doc.FromAny(oid), nil
	case IDTypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int id %q: %w", raw, err)
		}
		return doc.Int(n), nil
	default:
		return nil, fmt.Errorf("invalid id type %q: must be one of string, oid, int", idType)
	}
}

func runHistory(opts *HistoryOptions, collection, rawID string, cmd *cobra.Command) error {
	opts.configureLogging(cmd.ErrOrStderr())

	docID, err := parseDocID(rawID, opts.IDType)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid document id", err)
	}

	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	ctx := commandContext(cmd)
	st, err := openStore(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore(st)

	historyName := engine.HistoryName(cfg.Prefix, collection)
	snaps, err := st.History(ctx, historyName, docID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	result := historyResult{Collection: historyName, Snapshots: make([]json.RawMessage, 0, len(snaps))}
	for _, s := range snaps {
		data, err := doc.MarshalCanonical(s.Document())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to render snapshot", err)
		}
		result.Snapshots = append(result.Snapshots, data)
	}

	if err := opts.formatter(cmd).Success(result); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	return nil
}
