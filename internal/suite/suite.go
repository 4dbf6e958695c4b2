// Package suite loads and validates suite configuration: which engine
// to launch, which cases to run, what to skip and why. Suite files are
// CUE so the schema travels with the loader and misconfigurations fail
// at load time with positions, not mid-run.
package suite

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// Suite is a validated suite configuration.
type Suite struct {
	Name   string `json:"name"`
	Engine Engine `json:"engine"`
	Cases  Cases  `json:"cases"`

	// Features the engine must declare in its initialize handshake.
	Features []string `json:"features"`

	Skip []Skip `json:"skip"`

	// FrozenTime pins the engine clock; empty means real time.
	FrozenTime string `json:"frozen_time"`
}

// Engine describes how to launch the engine under test.
type Engine struct {
	Command   string   `json:"command"`
	Args      []string `json:"args"`
	TimeoutMS int      `json:"timeout_ms"`
}

// Timeout returns the per-call deadline as a duration.
func (e Engine) Timeout() time.Duration {
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

// Cases selects the case files for the suite. Dir is resolved relative
// to the suite file.
type Cases struct {
	Dir     string   `json:"dir"`
	Include []string `json:"include"`
	Exclude []string `json:"exclude"`
}

// Skip names a case excluded from the run, with the reason reported in
// results.
type Skip struct {
	Case   string `json:"case"`
	Reason string `json:"reason"`
}

// SkipReason returns the configured skip reason for a case name, if
// any.
func (s *Suite) SkipReason(caseName string) (string, bool) {
	for _, sk := range s.Skip {
		if sk.Case == caseName {
			return sk.Reason, true
		}
	}
	return "", false
}

// FrozenTimestamp parses FrozenTime. The zero time means no freezing.
func (s *Suite) FrozenTimestamp() (time.Time, error) {
	if s.FrozenTime == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s.FrozenTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("frozen_time: %w", err)
	}
	return t, nil
}

// Load reads a suite file, unifies it with the embedded schema,
// validates it to concreteness, and decodes it. The cases directory is
// re-rooted next to the suite file so suites are relocatable.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite file: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("internal schema error: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("parse suite %s: %s", path, cueerrors.Details(err, nil))
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return nil, fmt.Errorf("invalid suite %s: %s", path, cueerrors.Details(err, nil))
	}

	var s Suite
	if err := unified.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode suite %s: %w", path, err)
	}
	if _, err := s.FrozenTimestamp(); err != nil {
		return nil, fmt.Errorf("invalid suite %s: %w", path, err)
	}

	if !filepath.IsAbs(s.Cases.Dir) {
		s.Cases.Dir = filepath.Join(filepath.Dir(path), s.Cases.Dir)
	}
	return &s, nil
}
