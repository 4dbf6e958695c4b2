// Package spec loads conformance cases: fixed template/input/expected
// triples defined in YAML files.
package spec

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liquidlab/liquidspec/internal/wire"
)

// Case is one conformance test: a template, the environment it renders
// against, and either the expected output or the expected parse
// failure.
type Case struct {
	// Name uniquely identifies the case within a suite.
	Name string `yaml:"name"`

	// Description explains what the case exercises.
	Description string `yaml:"description,omitempty"`

	// Template is the source handed to the engine's compile call.
	Template string `yaml:"template"`

	// Environment is the named input data for render. Values are plain
	// YAML scalars and containers, except that a map carrying the
	// reserved $drop key declares a stub drop (see BuildEnvironment).
	Environment map[string]any `yaml:"environment,omitempty"`

	// Partials is the virtual file map backing {% include %}.
	Partials map[string]string `yaml:"partials,omitempty"`

	// Output is the expected rendered output. Mutually exclusive with
	// ParseError.
	Output *string `yaml:"output,omitempty"`

	// ParseError is a substring expected in the engine's parse error
	// message. Mutually exclusive with Output.
	ParseError string `yaml:"parse_error,omitempty"`

	// Options are the render switches for this case.
	Options Options `yaml:"options,omitempty"`
}

// Options mirrors the engine render switches a case may set.
type Options struct {
	ErrorMode    string `yaml:"error_mode,omitempty"`
	StrictErrors bool   `yaml:"strict_errors,omitempty"`
	RenderErrors bool   `yaml:"render_errors,omitempty"`
}

// RenderOptions converts case options to their wire form.
func (o Options) RenderOptions() wire.RenderOptions {
	return wire.RenderOptions{
		ErrorMode:    o.ErrorMode,
		StrictErrors: o.StrictErrors,
		RenderErrors: o.RenderErrors,
	}
}

// ExpectsParseError reports whether the case asserts a compile failure
// instead of rendered output.
func (c *Case) ExpectsParseError() bool {
	return c.ParseError != ""
}

// LoadCase reads and validates one case file. Unknown YAML fields are
// rejected so typos fail loudly instead of silently skipping an
// assertion.
func LoadCase(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read case file: %w", err)
	}
	var c Case
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse case %s: %w", path, err)
	}
	if err := validateCase(&c); err != nil {
		return nil, fmt.Errorf("invalid case %s: %w", path, err)
	}
	return &c, nil
}

func validateCase(c *Case) error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Template == "" {
		return fmt.Errorf("template is required")
	}
	if c.Output == nil && c.ParseError == "" {
		return fmt.Errorf("one of output or parse_error is required")
	}
	if c.Output != nil && c.ParseError != "" {
		return fmt.Errorf("output and parse_error are mutually exclusive")
	}
	if mode := c.Options.ErrorMode; mode != "" && mode != "lax" && mode != "strict" {
		return fmt.Errorf("error_mode must be lax or strict, got %q", mode)
	}
	return nil
}
