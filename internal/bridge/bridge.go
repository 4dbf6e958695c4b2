// Package bridge is the façade the test runner calls to drive an engine
// under test: compile a template, render it against an environment, and
// translate protocol-level and template-level failures into typed
// errors the comparison layer can tell apart.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/liquidlab/liquidspec/internal/drop"
	"github.com/liquidlab/liquidspec/internal/session"
	"github.com/liquidlab/liquidspec/internal/wire"
)

// ParseError is a compile-time failure inside the engine under test.
// It is an expected, comparable outcome - not a harness malfunction -
// and carries the engine's message plus a 1-based line when known.
type ParseError struct {
	Message string
	Line    int
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("template parse error at line %d: %s", e.Line, e.Message)
	}
	return "template parse error: " + e.Message
}

// CompileOptions carries engine compile switches and an optional
// virtual file map backing {% include %} lookups.
type CompileOptions struct {
	Options    map[string]any
	Filesystem map[string]string
}

// RenderResult is the outcome of a successful render call. Template
// render errors appear inline in Output by design; Errors carries them
// again as informational metadata for assertions.
type RenderResult struct {
	Output string
	Errors []string
}

// Bridge owns one engine session and its drop registry. Not safe for
// concurrent use.
type Bridge struct {
	session *session.Session

	// FrozenTime, when non-zero, is sent with every render so
	// date-dependent templates produce deterministic output.
	FrozenTime time.Time
}

// New wraps an existing session. The bridge takes over its lifecycle;
// call Close when done.
func New(s *session.Session) *Bridge {
	return &Bridge{session: s}
}

// Session exposes the underlying session for introspection (declared
// features, state).
func (b *Bridge) Session() *session.Session { return b.session }

// Close shuts the engine process down. Safe to call repeatedly.
func (b *Bridge) Close() {
	b.session.Shutdown()
}

// Compile sends template source to the engine and returns the opaque
// template id. A template-level failure comes back as *ParseError; a
// *wire.ProtocolError or *session.SubprocessError means the bridge or
// the engine misbehaved.
func (b *Bridge) Compile(ctx context.Context, source string, opts CompileOptions) (string, error) {
	if err := b.session.Initialize(ctx); err != nil {
		return "", err
	}
	params := wire.CompileParams{
		Template:   source,
		Options:    opts.Options,
		Filesystem: opts.Filesystem,
	}
	resp, err := b.session.Call(ctx, wire.MethodCompile, params)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", &wire.ProtocolError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	var result wire.CompileResult
	if err := wire.DecodeResult(resp, &result); err != nil {
		return "", err
	}
	// A populated error field inside a successful envelope is the
	// engine reporting a template parse failure, not a protocol one.
	if result.Error != nil {
		return "", &ParseError{Message: result.Error.Message, Line: result.Error.Line}
	}
	if result.TemplateID == "" {
		return "", &wire.ProtocolError{Code: wire.CodeInvalidRequest, Message: "compile result missing template_id"}
	}
	return result.TemplateID, nil
}

// Render renders a compiled template against env. The environment is
// wrapped into wire values first; drop-like values are registered in
// this session's registry, which is cleared here so drop ids from the
// previous case never leak into this one.
func (b *Bridge) Render(ctx context.Context, templateID string, env map[string]any, opts wire.RenderOptions) (*RenderResult, error) {
	if err := b.session.Initialize(ctx); err != nil {
		return nil, err
	}
	b.session.ClearDrops()

	wrapped, _ := drop.Wrap(env, b.session.Drops()).(map[string]any)
	params := wire.RenderParams{
		TemplateID:  templateID,
		Environment: wrapped,
		Options:     opts,
	}
	if !b.FrozenTime.IsZero() {
		params.FrozenTime = b.FrozenTime.UTC().Format(time.RFC3339)
	}

	resp, err := b.session.Call(ctx, wire.MethodRender, params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &wire.ProtocolError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	var result wire.RenderResult
	if err := wire.DecodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &RenderResult{Output: result.Output, Errors: result.Errors}, nil
}
