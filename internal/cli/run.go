package cli

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/liquidlab/liquidspec/internal/bridge"
	"github.com/liquidlab/liquidspec/internal/harness"
	"github.com/liquidlab/liquidspec/internal/session"
	"github.com/liquidlab/liquidspec/internal/spec"
	"github.com/liquidlab/liquidspec/internal/store"
	"github.com/liquidlab/liquidspec/internal/suite"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Watch    bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <suite.cue>",
		Short: "Run a conformance suite against an engine",
		Long: `Run every case in a suite against the engine it names.

The engine process is spawned once and reused across cases. Exit code
is 0 when every case passes, 1 when any case fails or errors.

Example:
  liquidspec run suites/core.cue
  liquidspec run suites/core.cue --db results.db
  liquidspec run suites/core.cue --watch`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "persist results to this SQLite database")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "re-run when the suite or case files change")

	return cmd
}

func runSuite(cmd *cobra.Command, opts *RunOptions, suitePath string) error {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if !opts.Watch {
		return executeSuite(ctx, opts, formatter, logger, suitePath)
	}

	return watchSuite(ctx, opts, formatter, logger, suitePath)
}

// executeSuite performs one complete run: load, spawn, execute,
// report, and optionally persist.
func executeSuite(ctx context.Context, opts *RunOptions, formatter *OutputFormatter, logger *slog.Logger, suitePath string) error {
	s, err := suite.Load(suitePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load suite", err)
	}

	cases, err := spec.LoadCases(s.Cases.Dir, s.Cases.Include, s.Cases.Exclude)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load cases", err)
	}
	if len(cases) == 0 {
		return NewExitError(ExitCommandError, "suite matched no case files")
	}

	frozen, err := s.FrozenTimestamp()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid suite", err)
	}

	sess := session.New(session.Config{
		Command: s.Engine.Command,
		Args:    s.Engine.Args,
		Timeout: s.Engine.Timeout(),
		Logger:  logger,
	})
	b := bridge.New(sess)
	b.FrozenTime = frozen
	defer b.Close()

	if err := checkFeatures(ctx, b, s.Features); err != nil {
		return WrapExitError(ExitCommandError, "engine rejected", err)
	}

	started := time.Now()
	runner := harness.NewRunner(b, s, logger)
	sum := runner.Run(ctx, cases)

	if formatter.Format == "text" {
		printSummary(formatter, sum)
	} else {
		if err := formatter.Success(sum); err != nil {
			return err
		}
	}

	if opts.Database != "" {
		if err := persistRun(ctx, opts.Database, s, sum, started); err != nil {
			return WrapExitError(ExitCommandError, "failed to persist results", err)
		}
	}

	if !sum.Ok() {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d failed, %d errored of %d cases", sum.Failed, sum.Errored, sum.Total))
	}
	return nil
}

// checkFeatures initializes the session and verifies the engine
// declares every feature the suite requires.
func checkFeatures(ctx context.Context, b *bridge.Bridge, required []string) error {
	if err := b.Session().Initialize(ctx); err != nil {
		return err
	}
	declared := make(map[string]bool)
	for _, f := range b.Session().Features() {
		declared[f] = true
	}
	var missing []string
	for _, f := range required {
		if !declared[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("engine does not declare required features: %s", strings.Join(missing, ", "))
	}
	return nil
}

// printSummary writes the human-readable run report.
func printSummary(f *OutputFormatter, sum *harness.Summary) {
	for _, o := range sum.Outcomes {
		switch o.Status {
		case harness.StatusPass:
			fmt.Fprintf(f.Writer, "PASS  %s\n", o.CaseName)
		case harness.StatusSkip:
			fmt.Fprintf(f.Writer, "SKIP  %s (%s)\n", o.CaseName, o.Message)
		default:
			fmt.Fprintf(f.Writer, "%s  %s\n      %s\n",
				strings.ToUpper(string(o.Status)), o.CaseName, o.Message)
		}
	}
	fmt.Fprintf(f.Writer, "\n%d cases: %d passed, %d failed, %d skipped, %d errored\n",
		sum.Total, sum.Passed, sum.Failed, sum.Skipped, sum.Errored)
}

// persistRun writes a completed run and its case results to the
// results database.
func persistRun(ctx context.Context, dbPath string, s *suite.Suite, sum *harness.Summary, started time.Time) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	engineCmd := s.Engine.Command
	if len(s.Engine.Args) > 0 {
		engineCmd += " " + strings.Join(s.Engine.Args, " ")
	}

	runID := store.NewRunID()
	if err := st.BeginRun(ctx, runID, s.Name, engineCmd, started); err != nil {
		return err
	}

	for _, o := range sum.Outcomes {
		cr := store.CaseResult{
			RunID:    runID,
			CaseName: o.CaseName,
			Status:   string(o.Status),
			Message:  o.Message,
			Duration: o.Duration,
		}
		if o.Status == harness.StatusPass && o.Output != "" {
			hash, err := store.OutputHash(o.Output)
			if err != nil {
				return err
			}
			cr.OutputHash = hash
		}
		if err := st.WriteCaseResult(ctx, cr); err != nil {
			return err
		}
	}

	return st.FinishRun(ctx, store.Run{
		ID:         runID,
		FinishedAt: time.Now(),
		Total:      sum.Total,
		Passed:     sum.Passed,
		Failed:     sum.Failed,
		Skipped:    sum.Skipped,
		Errored:    sum.Errored,
	})
}

// watchSuite runs the suite, then re-runs it whenever the suite file
// or anything under the cases directory changes. Ctrl-C stops the
// loop.
func watchSuite(parentCtx context.Context, opts *RunOptions, formatter *OutputFormatter, logger *slog.Logger, suitePath string) error {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start watcher", err)
	}
	defer watcher.Close()

	if err := addWatchPaths(watcher, suitePath); err != nil {
		return WrapExitError(ExitCommandError, "failed to watch paths", err)
	}

	for {
		runErr := executeSuite(ctx, opts, formatter, logger, suitePath)
		if runErr != nil {
			if GetExitCode(runErr) == ExitCommandError {
				return runErr
			}
			// A failing run is normal in watch mode; report and keep watching.
			fmt.Fprintln(formatter.Writer, runErr.Error())
		}
		fmt.Fprintln(formatter.Writer, "watching for changes...")

		if err := awaitChange(ctx, watcher); err != nil {
			return nil // cancelled
		}

		// Case directories may have appeared or vanished; re-arm.
		if err := addWatchPaths(watcher, suitePath); err != nil {
			logger.Warn("re-adding watch paths", "error", err)
		}
	}
}

// addWatchPaths watches the suite file's directory and every
// directory under the suite's cases dir. fsnotify does not recurse,
// so subdirectories are added one by one.
func addWatchPaths(watcher *fsnotify.Watcher, suitePath string) error {
	if err := watcher.Add(filepath.Dir(suitePath)); err != nil {
		return err
	}

	s, err := suite.Load(suitePath)
	if err != nil {
		// Leave just the suite dir watched; the next change re-arms.
		return nil
	}

	return filepath.WalkDir(s.Cases.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// awaitChange blocks until a relevant filesystem event arrives, then
// debounces briefly so editors that write in bursts trigger one run.
func awaitChange(ctx context.Context, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			debounce := time.NewTimer(250 * time.Millisecond)
			for {
				select {
				case <-ctx.Done():
					debounce.Stop()
					return ctx.Err()
				case <-watcher.Events:
					// absorb the burst
				case <-debounce.C:
					return nil
				}
			}
		case err := <-watcher.Errors:
			if err != nil {
				return err
			}
		}
	}
}
