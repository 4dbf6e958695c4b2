package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/liquidlab/liquidspec/internal/bridge"
	"github.com/liquidlab/liquidspec/internal/session"
	"github.com/liquidlab/liquidspec/internal/spec"
	"github.com/liquidlab/liquidspec/internal/suite"
)

// Runner executes cases sequentially against one engine session.
// Not safe for concurrent use; it shares the bridge's session.
type Runner struct {
	Bridge *bridge.Bridge
	Suite  *suite.Suite
	Logger *slog.Logger
}

// NewRunner wires a runner. A nil logger discards log output.
func NewRunner(b *bridge.Bridge, s *suite.Suite, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{Bridge: b, Suite: s, Logger: logger}
}

// Run executes all cases in order and returns the aggregate summary.
//
// A subprocess failure aborts the run: once the engine is dead every
// remaining case would error for the same reason, so they are recorded
// as errors without being attempted.
func (r *Runner) Run(ctx context.Context, cases []*spec.Case) *Summary {
	sum := &Summary{}

	for i, c := range cases {
		if reason, ok := r.Suite.SkipReason(c.Name); ok {
			sum.Add(Outcome{CaseName: c.Name, Status: StatusSkip, Message: reason})
			r.Logger.Info("case skipped", "case", c.Name, "reason", reason)
			continue
		}

		o := r.RunCase(ctx, c)
		sum.Add(o)
		r.Logger.Info("case finished",
			"case", o.CaseName,
			"status", o.Status,
			"duration", o.Duration,
		)

		if o.fatal {
			for _, rest := range cases[i+1:] {
				sum.Add(Outcome{
					CaseName: rest.Name,
					Status:   StatusError,
					Message:  "not attempted: engine process is gone",
				})
			}
			break
		}
	}

	return sum
}

// RunCase judges a single case. It never returns an error; harness
// malfunctions are folded into a StatusError outcome.
func (r *Runner) RunCase(ctx context.Context, c *spec.Case) Outcome {
	start := time.Now()
	o := r.runCase(ctx, c)
	o.CaseName = c.Name
	o.Duration = time.Since(start)
	return o
}

func (r *Runner) runCase(ctx context.Context, c *spec.Case) Outcome {
	id, err := r.Bridge.Compile(ctx, c.Template, bridge.CompileOptions{
		Filesystem: c.Partials,
	})

	if c.ExpectsParseError() {
		return judgeParseError(c, err)
	}

	if err != nil {
		var parseErr *bridge.ParseError
		if errors.As(err, &parseErr) {
			return Outcome{
				Status:  StatusFail,
				Message: "unexpected parse error: " + parseErr.Message,
			}
		}
		return errorOutcome(err)
	}

	env, err := c.BuildEnvironment()
	if err != nil {
		return Outcome{Status: StatusError, Message: "bad environment: " + err.Error()}
	}

	res, err := r.Bridge.Render(ctx, id, env, c.Options.RenderOptions())
	if err != nil {
		return errorOutcome(err)
	}

	if res.Output != *c.Output {
		return Outcome{
			Status:  StatusFail,
			Message: diffMessage(*c.Output, res.Output),
			Output:  res.Output,
		}
	}

	return Outcome{Status: StatusPass, Output: res.Output}
}

// judgeParseError scores a case that asserts a compile failure: the
// engine must report a parse error whose message contains the expected
// substring.
func judgeParseError(c *spec.Case, err error) Outcome {
	if err == nil {
		return Outcome{
			Status:  StatusFail,
			Message: fmt.Sprintf("expected parse error containing %q, template compiled", c.ParseError),
		}
	}
	var parseErr *bridge.ParseError
	if !errors.As(err, &parseErr) {
		return errorOutcome(err)
	}
	if !strings.Contains(parseErr.Message, c.ParseError) {
		return Outcome{
			Status:  StatusFail,
			Message: fmt.Sprintf("parse error %q does not contain %q", parseErr.Message, c.ParseError),
		}
	}
	return Outcome{Status: StatusPass}
}

// diffMessage reports the first byte offset where expected and actual
// diverge, with short context. Whole-output diffs belong in tooling,
// not in a one-line result message.
func diffMessage(expected, actual string) string {
	i := 0
	for i < len(expected) && i < len(actual) && expected[i] == actual[i] {
		i++
	}
	return fmt.Sprintf("output mismatch at byte %d: expected %q, got %q",
		i, clip(expected, i), clip(actual, i))
}

// clip returns up to 40 bytes of s starting at offset i.
func clip(s string, i int) string {
	if i >= len(s) {
		return ""
	}
	end := i + 40
	if end > len(s) {
		end = len(s)
	}
	return s[i:end]
}

// errorOutcome folds a harness-level error into a StatusError outcome.
// A subprocess failure marks the outcome fatal: the process is gone
// and no further case can be attempted on this session.
func errorOutcome(err error) Outcome {
	var subErr *session.SubprocessError
	return Outcome{
		Status:  StatusError,
		Message: err.Error(),
		fatal:   errors.As(err, &subErr),
	}
}
