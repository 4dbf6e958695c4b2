package wire

import "encoding/json"

// Method names exchanged with the engine process.
const (
	MethodInitialize  = "initialize"
	MethodCompile     = "compile"
	MethodRender      = "render"
	MethodQuit        = "quit"
	MethodDropGet     = "drop_get"
	MethodDropCall    = "drop_call"
	MethodDropIterate = "drop_iterate"
)

// InitializeParams is sent once per session before any other request.
type InitializeParams struct {
	Version string `json:"version"`
}

// InitializeResult declares the engine's protocol version and the
// feature names it supports. Features is required; a missing list is a
// handshake failure.
type InitializeResult struct {
	Version  string   `json:"version"`
	Features []string `json:"features"`
}

// CompileParams carries a template source and any virtual files the
// template may include.
type CompileParams struct {
	Template   string            `json:"template"`
	Options    map[string]any    `json:"options,omitempty"`
	Filesystem map[string]string `json:"filesystem,omitempty"`
}

// TemplateError describes a template-level failure reported inside a
// successful envelope. Line is 1-based when the engine knows it.
type TemplateError struct {
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// CompileResult returns the opaque handle for a compiled template, or a
// template parse error. The compiled artifact lives in the engine; the
// harness only ever sees the id.
type CompileResult struct {
	TemplateID string         `json:"template_id,omitempty"`
	Error      *TemplateError `json:"error,omitempty"`
}

// RenderParams renders a previously compiled template against a wrapped
// environment. FrozenTime, when set, pins the engine's clock so
// date-dependent output is deterministic.
type RenderParams struct {
	TemplateID  string         `json:"template_id"`
	Environment map[string]any `json:"environment"`
	Options     RenderOptions  `json:"options"`
	FrozenTime  string         `json:"frozen_time,omitempty"`
}

// RenderOptions mirrors the candidate engine's render switches.
type RenderOptions struct {
	ErrorMode    string `json:"error_mode,omitempty"` // "lax" | "strict"
	StrictErrors bool   `json:"strict_errors,omitempty"`
	RenderErrors bool   `json:"render_errors,omitempty"`
}

// RenderResult carries the rendered output. Render-time errors are
// rendered inline into Output by the engine; Errors is informational
// metadata only, never a control-flow signal.
type RenderResult struct {
	Output string   `json:"output"`
	Errors []string `json:"errors,omitempty"`
}

// DropGetParams asks the harness for a property of a registered drop.
type DropGetParams struct {
	DropID   string `json:"drop_id"`
	Property string `json:"property"`
}

// DropCallParams invokes a method on a registered drop.
type DropCallParams struct {
	DropID string `json:"drop_id"`
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

// DropIterateParams asks for the members of an iterable drop.
type DropIterateParams struct {
	DropID string `json:"drop_id"`
}

// DropValueResult wraps a single callback value.
type DropValueResult struct {
	Value any `json:"value"`
}

// DropItemsResult wraps an iteration result.
type DropItemsResult struct {
	Items []any `json:"items"`
}

// DecodeParams unmarshals an envelope's params into a typed struct.
func DecodeParams(m *Message, v any) error {
	if len(m.Params) == 0 {
		return &ProtocolError{Code: CodeInvalidRequest, Message: "missing params for " + m.Method}
	}
	if err := json.Unmarshal(m.Params, v); err != nil {
		return &ProtocolError{Code: CodeInvalidRequest, Message: "invalid params for " + m.Method + ": " + err.Error()}
	}
	return nil
}

// DecodeResult unmarshals a response envelope's result member.
func DecodeResult(m *Message, v any) error {
	if len(m.Result) == 0 {
		return &ProtocolError{Code: CodeInvalidRequest, Message: "response has no result"}
	}
	if err := json.Unmarshal(m.Result, v); err != nil {
		return &ProtocolError{Code: CodeInvalidRequest, Message: "invalid result: " + err.Error()}
	}
	return nil
}
