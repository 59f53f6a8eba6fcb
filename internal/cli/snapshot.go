package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/snapshot"
)

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Read the local snapshot database",
	}
	cmd.AddCommand(newSnapshotQueryCommand(rootOpts))
	return cmd
}

func newSnapshotQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var where []string
	var limit int

	cmd := &cobra.Command{
		Use:   "query <doctype>",
		Short: "Query documents stored in the snapshot",
		Long: `Query documents saved by "doclink query --save-snapshot" without
contacting the stack.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotQuery(cmd.Context(), rootOpts, args[0], where, limit, cmd)
		},
	}
	cmd.Flags().StringArrayVar(&where, "where", nil, "equality filter field=value (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of documents")
	return cmd
}

func runSnapshotQuery(ctx context.Context, rootOpts *RootOptions, doctype string, where []string, limit int, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(rootOpts, cmd)

	cfg, err := loadConfig(rootOpts, cmd)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, WrapExitError(ExitCommandError, "invalid configuration", err))
	}
	if cfg.SnapshotPath == "" {
		return reportError(formatter, ErrCodeConfig, NewExitError(ExitCommandError, "no snapshot path configured"))
	}
	sch, err := loadSchema(cfg)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	preds, err := parseWhere(where)
	if err != nil {
		return reportError(formatter, ErrCodeQuery, err)
	}

	snap, err := snapshot.Open(cfg.SnapshotPath)
	if err != nil {
		return reportError(formatter, ErrCodeSnapshot, WrapExitError(ExitCommandError, "open snapshot", err))
	}
	defer snap.Close()

	def := query.Q(resolveDoctype(sch, doctype))
	if len(preds) > 0 {
		def = def.Where(preds...)
	}
	if limit > 0 {
		def = def.Limit(limit)
	}

	formatter.VerboseLog("Reading %s from %s", def.Doctype, cfg.SnapshotPath)
	docs, err := snap.Query(ctx, def)
	if err != nil {
		return reportError(formatter, ErrCodeSnapshot, WrapExitError(ExitFailure, "snapshot query failed", err))
	}
	return formatter.Documents(docs)
}
