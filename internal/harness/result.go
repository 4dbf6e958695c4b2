package harness

import "time"

// Status classifies one case outcome.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusSkip  Status = "skip"
	StatusError Status = "error"
)

// Outcome is the judged result of one case.
type Outcome struct {
	// CaseName identifies the case within the suite.
	CaseName string `json:"case_name"`

	Status Status `json:"status"`

	// Message explains a fail, skip, or error. Empty on pass.
	Message string `json:"message,omitempty"`

	// Output is the engine's rendered output, when a render completed.
	// Kept for diffing and for content hashing by the persistence layer.
	Output string `json:"output,omitempty"`

	Duration time.Duration `json:"duration_ms"`

	// fatal means the engine process is unusable and the run cannot
	// continue past this case.
	fatal bool
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	Outcomes []Outcome `json:"outcomes"`

	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// Add records an outcome and bumps the matching counter.
func (s *Summary) Add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.Total++
	switch o.Status {
	case StatusPass:
		s.Passed++
	case StatusFail:
		s.Failed++
	case StatusSkip:
		s.Skipped++
	case StatusError:
		s.Errored++
	}
}

// Ok reports whether the run had no failures and no errors.
func (s *Summary) Ok() bool {
	return s.Failed == 0 && s.Errored == 0
}
