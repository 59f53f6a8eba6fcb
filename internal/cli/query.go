package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/doclink/internal/client"
	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/link"
	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/snapshot"
)

// QueryOptions holds flags of the query command.
type QueryOptions struct {
	ID              string
	Where           []string
	Include         []string
	Limit           int
	All             bool
	MaxPages        int
	SaveSnapshot    bool
	OfflineFallback bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query <doctype>",
		Short: "Query documents from the stack",
		Long: `Query documents of a doctype (or schema alias) from the stack.

Relationships named with --include are fetched and attached to the results.
With --all, pages are fetched until the stack reports no more.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "fetch a single document by id")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "equality filter field=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Include, "include", nil, "relationship to include (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	cmd.Flags().BoolVar(&opts.All, "all", false, "fetch every page")
	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 0, "page limit for --all (0 = unbounded)")
	cmd.Flags().BoolVar(&opts.SaveSnapshot, "save-snapshot", false, "write results to the snapshot database")
	cmd.Flags().BoolVar(&opts.OfflineFallback, "offline-fallback", false, "answer from the snapshot when the stack fails")

	return cmd
}

func runQuery(ctx context.Context, rootOpts *RootOptions, opts *QueryOptions, doctype string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(rootOpts, cmd)
	logger := newLogger(rootOpts, cmd.ErrOrStderr())

	cfg, err := loadConfig(rootOpts, cmd)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, WrapExitError(ExitCommandError, "invalid configuration", err))
	}

	preds, err := parseWhere(opts.Where)
	if err != nil {
		return reportError(formatter, ErrCodeQuery, err)
	}

	var (
		snap  *snapshot.Store
		extra []link.Link
	)
	if opts.SaveSnapshot || opts.OfflineFallback {
		if cfg.SnapshotPath == "" {
			return reportError(formatter, ErrCodeConfig,
				NewExitError(ExitCommandError, "--save-snapshot and --offline-fallback need a snapshot path"))
		}
		snap, err = snapshot.Open(cfg.SnapshotPath)
		if err != nil {
			return reportError(formatter, ErrCodeSnapshot, WrapExitError(ExitCommandError, "open snapshot", err))
		}
		defer snap.Close()
		if opts.OfflineFallback {
			extra = append(extra, snapshot.Link(snap, snapshot.WithOfflineFallback(), snapshot.WithLinkLogger(logger)))
		}
	}

	sess, err := openSession(ctx, cfg, logger, extra...)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	defer sess.close(ctx, logger)

	def := query.Q(resolveDoctype(sess.client.Schema(), doctype))
	if opts.ID != "" {
		def = def.GetByID(opts.ID)
	}
	if len(preds) > 0 {
		def = def.Where(preds...)
	}
	if len(opts.Include) > 0 {
		def = def.Include(opts.Include...)
	}
	if opts.Limit > 0 {
		def = def.Limit(opts.Limit)
	}

	formatter.VerboseLog("Querying %s", def.Doctype)

	var docs []ir.Document
	if opts.All {
		docs, err = sess.client.QueryAll(ctx, def, client.WithMaxPages(opts.MaxPages))
	} else {
		var resp *query.Response
		resp, err = sess.client.Query(ctx, def)
		if resp != nil {
			docs = resp.Data
		}
	}
	if err != nil {
		code := ExitFailure
		if client.IsConfigError(err) {
			code = ExitCommandError
		}
		return reportError(formatter, ErrCodeQuery, WrapExitError(code, "query failed", err))
	}

	if opts.SaveSnapshot {
		n, err := snap.Save(ctx, sess.client.Store())
		if err != nil {
			return reportError(formatter, ErrCodeSnapshot, WrapExitError(ExitFailure, "save snapshot", err))
		}
		formatter.VerboseLog("Saved %d document(s) to %s", n, cfg.SnapshotPath)
	}

	return formatter.Documents(docs)
}

// reportError writes err in the configured format and returns it so that
// the exit code is preserved.
func reportError(f *OutputFormatter, code string, err error) error {
	if werr := f.Error(code, err.Error(), nil); werr != nil {
		return werr
	}
	return err
}
