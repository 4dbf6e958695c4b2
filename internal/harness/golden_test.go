package harness

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidlab/liquidspec/internal/bridge"
	"github.com/liquidlab/liquidspec/internal/session"
	"github.com/liquidlab/liquidspec/internal/spec"
	"github.com/liquidlab/liquidspec/internal/testutil"
	"github.com/liquidlab/liquidspec/internal/wire"
)

func TestTranscriptRecordsEnvelopes(t *testing.T) {
	tr := &Transcript{}

	req, err := wire.NewRequest(1, wire.MethodCompile, wire.CompileParams{Template: "x"})
	require.NoError(t, err)
	tr.Record("send", req)

	resp, err := wire.NewResponse(req.ID, wire.CompileResult{TemplateID: "tmpl_1"})
	require.NoError(t, err)
	tr.Record("recv", resp)

	require.Len(t, tr.Entries, 2)
	assert.Equal(t, "send", tr.Entries[0].Direction)
	assert.Equal(t, wire.MethodCompile, tr.Entries[0].Method)
	assert.Equal(t, "1", tr.Entries[0].ID)
	assert.Equal(t, map[string]any{"template": "x"}, tr.Entries[0].Params)
	assert.Equal(t, "recv", tr.Entries[1].Direction)
	assert.Equal(t, map[string]any{"template_id": "tmpl_1"}, tr.Entries[1].Result)

	tr.Reset()
	assert.Empty(t, tr.Entries)
}

func TestTranscriptRecordsErrors(t *testing.T) {
	tr := &Transcript{}

	msg := wire.NewErrorResponse(wire.NumberID(1), wire.CodeRenderError, "boom", nil)
	tr.Record("recv", msg)

	require.Len(t, tr.Entries, 1)
	assert.Equal(t, map[string]any{
		"code":    wire.CodeRenderError,
		"message": "boom",
	}, tr.Entries[0].Error)
}

// The golden transcript pins the protocol exchange for a minimal
// compile-and-render exchange: one handshake, one compile, one render.
func TestTranscriptGolden(t *testing.T) {
	tr := &Transcript{}
	engine := testutil.StartEngine()
	sess := session.NewWithPipes(engine.In, engine.Out, session.Config{
		Timeout:  5 * time.Second,
		Recorder: tr,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	b := bridge.New(sess)
	t.Cleanup(b.Close)
	ctx := context.Background()

	id, err := b.Compile(ctx, "Hello, {{ name | upcase }}!", bridge.CompileOptions{})
	require.NoError(t, err)

	res, err := b.Render(ctx, id, map[string]any{"name": "world"}, wire.RenderOptions{})
	require.NoError(t, err)
	require.Equal(t, "Hello, WORLD!", res.Output)

	tr.AssertGolden(t, "upcase_exchange")
}

// Same exchange with a drop in the environment: the render response is
// preceded by the engine's drop_get callback and the harness's reply on
// the same stream.
func TestTranscriptGoldenDropCallback(t *testing.T) {
	tr := &Transcript{}
	engine := testutil.StartEngine()
	sess := session.NewWithPipes(engine.In, engine.Out, session.Config{
		Timeout:  5 * time.Second,
		Recorder: tr,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	b := bridge.New(sess)
	t.Cleanup(b.Close)
	ctx := context.Background()

	id, err := b.Compile(ctx, "Hello, {{ user.name }}!", bridge.CompileOptions{})
	require.NoError(t, err)

	env := map[string]any{
		"user": &spec.StubDrop{
			Type:       "UserDrop",
			Properties: map[string]any{"name": "Alice"},
		},
	}
	res, err := b.Render(ctx, id, env, wire.RenderOptions{})
	require.NoError(t, err)
	require.Equal(t, "Hello, Alice!", res.Output)

	tr.AssertGolden(t, "drop_callback_exchange")
}
