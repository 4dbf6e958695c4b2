package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/liquidlab/liquidspec/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [case-name]",
		Short: "Show recorded runs, or one case's outcomes across runs",
		Long: `Read results recorded by "run --db".

Without arguments, history lists recent runs newest first. With a case
name, it shows that case's outcome in each recent run - useful for
spotting when a case started failing.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			caseName := ""
			if len(args) == 1 {
				caseName = args[0]
			}
			return showHistory(cmd, opts, caseName)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to results database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum entries to show")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func showHistory(cmd *cobra.Command, opts *HistoryOptions, caseName string) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if caseName != "" {
		return showCaseHistory(ctx, formatter, st, caseName, opts.Limit)
	}
	return showRuns(ctx, formatter, st, opts.Limit)
}

func showRuns(ctx context.Context, formatter *OutputFormatter, st *store.Store, limit int) error {
	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(runs)
	}

	for _, r := range runs {
		fmt.Fprintf(formatter.Writer, "%s  %s  %s  %d/%d passed (%d failed, %d skipped, %d errored)\n",
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.Suite,
			r.Passed, r.Total, r.Failed, r.Skipped, r.Errored)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "no runs recorded")
	}
	return nil
}

func showCaseHistory(ctx context.Context, formatter *OutputFormatter, st *store.Store, caseName string, limit int) error {
	results, err := st.CaseHistory(ctx, caseName, limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read case history", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(results)
	}

	for _, cr := range results {
		line := fmt.Sprintf("%s  %-5s  %v", cr.RunID, cr.Status, cr.Duration)
		if cr.Message != "" {
			line += "  " + cr.Message
		}
		fmt.Fprintln(formatter.Writer, line)
	}
	if len(results) == 0 {
		fmt.Fprintf(formatter.Writer, "no recorded outcomes for case %q\n", caseName)
	}
	return nil
}
