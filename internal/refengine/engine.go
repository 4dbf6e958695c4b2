// Package refengine is the reference implementation of the engine side
// of the conformance protocol: a minimal template engine that speaks
// newline-delimited envelopes over stdio. It exists so the toolkit can
// test itself end to end and so engine authors have a known-good peer
// to diff their wire behavior against.
//
// Supported template subset: raw text, {{ path | filter }} output with
// the upcase, downcase and size filters, {% for x in path %} loops,
// {% include "partial" %} against the compile-time virtual filesystem,
// and {% comment %} blocks. Unknown tags are parse errors. Render-time
// failures are rendered inline as "Liquid error: ..." and reported in
// the errors metadata, never raised.
package refengine

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/liquidlab/liquidspec/internal/drop"
	"github.com/liquidlab/liquidspec/internal/wire"
)

// Features declared in the initialize handshake.
var Features = []string{"filters", "for", "include", "drops", "frozen_time"}

// Engine serves one harness connection. Single conversation, single
// goroutine: while a render is in flight the engine may issue its own
// callback requests and block for their responses on the same stream.
type Engine struct {
	r *bufio.Reader
	w io.Writer

	nextID    int64
	templates map[string]*Template
	tcount    int
}

// New creates an engine over the given streams (stdin/stdout when run
// as a real subprocess, in-memory pipes in tests).
func New(r io.Reader, w io.Writer) *Engine {
	return &Engine{
		r:         bufio.NewReaderSize(r, 1<<20),
		w:         w,
		templates: make(map[string]*Template),
	}
}

// Serve runs the request loop until the harness sends quit or the
// stream closes.
func (e *Engine) Serve() error {
	for {
		msg, err := e.read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// Malformed input gets an error envelope with a null id;
			// the loop keeps serving.
			if protoErr, ok := err.(*wire.ProtocolError); ok {
				e.write(wire.NewErrorResponse(nil, protoErr.Code, protoErr.Message, nil))
				continue
			}
			return err
		}
		if msg.IsNotification() {
			if msg.Method == wire.MethodQuit {
				return nil
			}
			continue
		}
		if !msg.IsRequest() {
			// A response with nothing outstanding; ignore.
			continue
		}
		reply := e.handle(msg)
		if err := e.write(reply); err != nil {
			return err
		}
	}
}

func (e *Engine) read() (*wire.Message, error) {
	line, err := e.r.ReadBytes('\n')
	if len(line) == 0 && err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	return wire.DecodeLine(line)
}

func (e *Engine) write(m *wire.Message) error {
	buf, err := wire.EncodeLine(m)
	if err != nil {
		return err
	}
	_, err = e.w.Write(buf)
	return err
}

func (e *Engine) handle(msg *wire.Message) *wire.Message {
	switch msg.Method {
	case wire.MethodInitialize:
		return e.handleInitialize(msg)
	case wire.MethodCompile:
		return e.handleCompile(msg)
	case wire.MethodRender:
		return e.handleRender(msg)
	default:
		return wire.NewErrorResponse(msg.ID, wire.CodeMethodNotFound,
			fmt.Sprintf("unknown method %q", msg.Method), nil)
	}
}

func (e *Engine) handleInitialize(msg *wire.Message) *wire.Message {
	var params wire.InitializeParams
	if err := wire.DecodeParams(msg, &params); err != nil {
		return errorReply(msg, err)
	}
	reply, err := wire.NewResponse(msg.ID, wire.InitializeResult{
		Version:  params.Version,
		Features: Features,
	})
	if err != nil {
		return errorReply(msg, err)
	}
	return reply
}

func (e *Engine) handleCompile(msg *wire.Message) *wire.Message {
	var params wire.CompileParams
	if err := wire.DecodeParams(msg, &params); err != nil {
		return errorReply(msg, err)
	}
	tmpl, err := parse(params.Template, params.Filesystem)
	if err != nil {
		// Parse failures are domain results, not protocol errors: they
		// travel inside a successful envelope.
		terr := &wire.TemplateError{Message: err.Error()}
		if pe, ok := err.(*parseError); ok {
			terr.Line = pe.line
			terr.Message = pe.message
		}
		reply, rerr := wire.NewResponse(msg.ID, wire.CompileResult{Error: terr})
		if rerr != nil {
			return errorReply(msg, rerr)
		}
		return reply
	}
	e.tcount++
	id := fmt.Sprintf("tmpl_%d", e.tcount)
	e.templates[id] = tmpl
	reply, rerr := wire.NewResponse(msg.ID, wire.CompileResult{TemplateID: id})
	if rerr != nil {
		return errorReply(msg, rerr)
	}
	return reply
}

func (e *Engine) handleRender(msg *wire.Message) *wire.Message {
	var params wire.RenderParams
	if err := wire.DecodeParams(msg, &params); err != nil {
		return errorReply(msg, err)
	}
	tmpl, ok := e.templates[params.TemplateID]
	if !ok {
		return wire.NewErrorResponse(msg.ID, wire.CodeInvalidRequest,
			fmt.Sprintf("unknown template_id %q", params.TemplateID), nil)
	}

	env, _ := drop.Unwrap(anyMap(params.Environment), e).(map[string]any)
	if env == nil {
		env = map[string]any{}
	}
	if params.FrozenTime != "" {
		if t, err := time.Parse(time.RFC3339, params.FrozenTime); err == nil {
			env["now"] = t.UTC().Format(time.RFC3339)
		}
	}

	rc := &renderContext{
		env:    env,
		strict: params.Options.ErrorMode == "strict" || params.Options.StrictErrors,
	}
	output := tmpl.render(rc)
	reply, err := wire.NewResponse(msg.ID, wire.RenderResult{Output: output, Errors: rc.errs})
	if err != nil {
		return errorReply(msg, err)
	}
	return reply
}

// Callback implements drop.Caller: it sends a drop_* request upstream
// and blocks on this same stream until the matching response arrives.
// The harness services callbacks synchronously and in order, so nothing
// else can arrive in between except the response itself.
func (e *Engine) Callback(method string, params any) (*wire.Message, error) {
	e.nextID++
	id := e.nextID
	req, err := wire.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	if err := e.write(req); err != nil {
		return nil, err
	}
	want := string(wire.NumberID(id))
	for {
		msg, err := e.read()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("stream closed while waiting for callback response")
			}
			return nil, err
		}
		if msg.IsResponse() && string(msg.ID) == want {
			return msg, nil
		}
		// Anything else here is a harness protocol violation; skip it
		// rather than deadlocking.
	}
}

func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func errorReply(msg *wire.Message, err error) *wire.Message {
	if protoErr, ok := err.(*wire.ProtocolError); ok {
		return wire.NewErrorResponse(msg.ID, protoErr.Code, protoErr.Message, nil)
	}
	return wire.NewErrorResponse(msg.ID, wire.CodeInvalidRequest, err.Error(), nil)
}
