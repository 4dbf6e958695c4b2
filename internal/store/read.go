package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ListRuns returns the most recent runs, newest first, up to limit.
// UUIDv7 run ids sort chronologically so ordering by id is ordering by time.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, suite, engine, started_at, finished_at,
		       total, passed, failed, skipped, errored
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	if runs == nil {
		runs = []Run{}
	}

	return runs, nil
}

// CaseHistory returns the outcome of a single case across recent runs,
// newest first, up to limit.
//
// Returns an empty slice (not nil) if the case has never been recorded.
func (s *Store) CaseHistory(ctx context.Context, caseName string, limit int) ([]CaseResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, case_name, status, message, output_hash, duration_ms
		FROM case_results
		WHERE case_name = ?
		ORDER BY run_id DESC
		LIMIT ?
	`, caseName, limit)
	if err != nil {
		return nil, fmt.Errorf("query case history: %w", err)
	}
	defer rows.Close()

	var results []CaseResult
	for rows.Next() {
		cr, err := scanCaseResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, cr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case history: %w", err)
	}

	if results == nil {
		results = []CaseResult{}
	}

	return results, nil
}

// RunResults returns all case outcomes for one run, ordered by case name.
//
// Returns an empty slice (not nil) if the run has no recorded results.
func (s *Store) RunResults(ctx context.Context, runID string) ([]CaseResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, case_name, status, message, output_hash, duration_ms
		FROM case_results
		WHERE run_id = ?
		ORDER BY case_name ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run results: %w", err)
	}
	defer rows.Close()

	var results []CaseResult
	for rows.Next() {
		cr, err := scanCaseResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, cr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run results: %w", err)
	}

	if results == nil {
		results = []CaseResult{}
	}

	return results, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
	)
	if err := rows.Scan(
		&run.ID,
		&run.Suite,
		&run.Engine,
		&startedAt,
		&finishedAt,
		&run.Total,
		&run.Passed,
		&run.Failed,
		&run.Skipped,
		&run.Errored,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("scan run: parse started_at: %w", err)
	}
	run.StartedAt = t

	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("scan run: parse finished_at: %w", err)
		}
		run.FinishedAt = t
	}

	return run, nil
}

func scanCaseResult(rows *sql.Rows) (CaseResult, error) {
	var (
		cr         CaseResult
		message    sql.NullString
		outputHash sql.NullString
		durationMS int64
	)
	if err := rows.Scan(
		&cr.RunID,
		&cr.CaseName,
		&cr.Status,
		&message,
		&outputHash,
		&durationMS,
	); err != nil {
		return CaseResult{}, fmt.Errorf("scan case result: %w", err)
	}

	cr.Message = message.String
	cr.OutputHash = outputHash.String
	cr.Duration = time.Duration(durationMS) * time.Millisecond

	return cr, nil
}
