package store

import (
	"context"
	"fmt"
	"time"
)

// Run is a single execution of a suite against an engine.
type Run struct {
	ID         string
	Suite      string
	Engine     string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Passed     int
	Failed     int
	Skipped    int
	Errored    int
}

// CaseResult is the outcome of one case within a run.
type CaseResult struct {
	RunID      string
	CaseName   string
	Status     string // pass | fail | skip | error
	Message    string
	OutputHash string
	Duration   time.Duration
}

// Result status values stored in case_results.status.
const (
	StatusPass  = "pass"
	StatusFail  = "fail"
	StatusSkip  = "skip"
	StatusError = "error"
)

// BeginRun inserts a run row with counters zeroed and no finish time.
// Call FinishRun once all case results are written.
func (s *Store) BeginRun(ctx context.Context, id, suite, engine string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, suite, engine, started_at)
		VALUES (?, ?, ?, ?)
	`,
		id,
		suite,
		engine,
		startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	return nil
}

// FinishRun records the finish time and final counters for a run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, total = ?, passed = ?, failed = ?, skipped = ?, errored = ?
		WHERE id = ?
	`,
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Total,
		run.Passed,
		run.Failed,
		run.Skipped,
		run.Errored,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: no run with id %q", run.ID)
	}

	return nil
}

// WriteCaseResult inserts a case outcome for a run.
// Uses ON CONFLICT DO NOTHING for idempotency - a case is recorded at most
// once per run, so retried writes are silently ignored.
//
// The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteCaseResult(ctx context.Context, cr CaseResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO case_results
		(run_id, case_name, status, message, output_hash, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		cr.RunID,
		cr.CaseName,
		cr.Status,
		cr.Message,
		cr.OutputHash,
		cr.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("write case result: %w", err)
	}

	return nil
}
