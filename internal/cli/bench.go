package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/liquidlab/liquidspec/internal/bridge"
	"github.com/liquidlab/liquidspec/internal/harness"
	"github.com/liquidlab/liquidspec/internal/session"
	"github.com/liquidlab/liquidspec/internal/spec"
	"github.com/liquidlab/liquidspec/internal/suite"
)

// BenchOptions holds flags for the bench command.
type BenchOptions struct {
	*RootOptions
	Rounds int
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bench <suite.cue>",
		Short: "Measure per-case timings for a suite",
		Long: `Run a suite repeatedly and report per-case duration statistics.

Outcomes are not scored; bench exists to spot protocol overhead and
slow cases. A failing case still contributes its duration.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return benchSuite(cmd, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Rounds, "rounds", 3, "number of times to run the suite")

	return cmd
}

func benchSuite(cmd *cobra.Command, opts *BenchOptions, suitePath string) error {
	if opts.Rounds < 1 {
		return NewExitError(ExitCommandError, "rounds must be at least 1")
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := suite.Load(suitePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load suite", err)
	}
	cases, err := spec.LoadCases(s.Cases.Dir, s.Cases.Include, s.Cases.Exclude)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load cases", err)
	}

	frozen, err := s.FrozenTimestamp()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid suite", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	timings := make([]harness.Timing, 0, opts.Rounds)
	for round := 0; round < opts.Rounds; round++ {
		sess := session.New(session.Config{
			Command: s.Engine.Command,
			Args:    s.Engine.Args,
			Timeout: s.Engine.Timeout(),
			Logger:  logger,
		})
		b := bridge.New(sess)
		b.FrozenTime = frozen

		runner := harness.NewRunner(b, s, logger)
		sum := runner.Run(ctx, cases)
		b.Close()

		timings = append(timings, harness.Timings(sum))
	}

	if formatter.Format == "json" {
		return formatter.Success(timings)
	}

	for i, t := range timings {
		fmt.Fprintf(formatter.Writer, "round %d: %d cases, min %v, mean %v, max %v, total %v\n",
			i+1, t.Cases, t.Min, t.Mean, t.Max, t.Total)
	}
	return nil
}
