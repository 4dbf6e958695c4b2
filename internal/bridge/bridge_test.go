package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidlab/liquidspec/internal/session"
	"github.com/liquidlab/liquidspec/internal/testutil"
	"github.com/liquidlab/liquidspec/internal/wire"
)

// newTestBridge wires a bridge to an in-process reference engine.
func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	engine := testutil.StartEngine()
	s := session.NewWithPipes(engine.In, engine.Out, session.Config{
		Timeout: 5 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	b := New(s)
	t.Cleanup(b.Close)
	return b
}

type userDrop struct {
	name string
}

func (d *userDrop) DropName() string { return "UserDrop" }

func (d *userDrop) GetProperty(name string) (any, error) {
	if name == "name" {
		return d.name, nil
	}
	return nil, fmt.Errorf("no property %q", name)
}

type itemsDrop struct{ items []any }

func (d *itemsDrop) DropName() string        { return "ItemsDrop" }
func (d *itemsDrop) Iterate() ([]any, error) { return d.items, nil }

func TestCompileAndRender(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	id, err := b.Compile(ctx, "Hello, {{ name | upcase }}!", CompileOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	res, err := b.Render(ctx, id, map[string]any{"name": "alice"}, wire.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Hello, ALICE!", res.Output)
	assert.Empty(t, res.Errors)
}

func TestRenderWithDropCallback(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	id, err := b.Compile(ctx, "Hello, {{ user.name }}!", CompileOptions{})
	require.NoError(t, err)

	env := map[string]any{"user": &userDrop{name: "Alice"}}
	res, err := b.Render(ctx, id, env, wire.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Alice!", res.Output)
}

func TestRenderIteratesDrop(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	id, err := b.Compile(ctx, "{% for x in items %}{{ x }},{% endfor %}", CompileOptions{})
	require.NoError(t, err)

	env := map[string]any{"items": &itemsDrop{items: []any{1, 2, 3}}}
	res, err := b.Render(ctx, id, env, wire.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1,2,3,", res.Output)
}

func TestCompileParseError(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	_, err := b.Compile(ctx, "{% unknown %}", CompileOptions{})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Message, "unknown tag")
	assert.Equal(t, 1, parseErr.Line)
}

func TestCompileWithPartials(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	id, err := b.Compile(ctx, `a {% include "part" %} c`, CompileOptions{
		Filesystem: map[string]string{"part": "b"},
	})
	require.NoError(t, err)

	res, err := b.Render(ctx, id, nil, wire.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a b c", res.Output)
}

func TestCompileMissingPartial(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	_, err := b.Compile(ctx, `{% include "nope" %}`, CompileOptions{})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Message, "not found")
}

func TestRenderUnknownTemplateID(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	require.NoError(t, b.Session().Initialize(ctx))
	_, err := b.Render(ctx, "tmpl_999", nil, wire.RenderOptions{})
	var protoErr *wire.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestRenderErrorsAreInline(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	id, err := b.Compile(ctx, "{{ x | nope }}", CompileOptions{})
	require.NoError(t, err)

	res, err := b.Render(ctx, id, map[string]any{"x": "v"}, wire.RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Liquid error:")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "unknown filter")
}

func TestStrictModeUndefinedVariable(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	id, err := b.Compile(ctx, "{{ missing }}", CompileOptions{})
	require.NoError(t, err)

	lax, err := b.Render(ctx, id, map[string]any{}, wire.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", lax.Output)

	strict, err := b.Render(ctx, id, map[string]any{}, wire.RenderOptions{ErrorMode: "strict"})
	require.NoError(t, err)
	assert.Contains(t, strict.Output, "undefined variable")
}

func TestFrozenTime(t *testing.T) {
	b := newTestBridge(t)
	b.FrozenTime = testutil.FrozenInstant
	ctx := context.Background()

	id, err := b.Compile(ctx, "{{ now }}", CompileOptions{})
	require.NoError(t, err)

	res, err := b.Render(ctx, id, nil, wire.RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-15T12:00:00Z", res.Output)
}

func TestDropIDsResetBetweenRenders(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	id, err := b.Compile(ctx, "{{ user.name }}", CompileOptions{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		env := map[string]any{"user": &userDrop{name: "A"}}
		_, err := b.Render(ctx, id, env, wire.RenderOptions{})
		require.NoError(t, err)
		// Each render starts a fresh epoch: exactly one drop, id drop_1.
		assert.Equal(t, 1, b.Session().Drops().Len())
		_, ok := b.Session().Drops().Lookup("drop_1")
		assert.True(t, ok)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := newTestBridge(t)
	b.Close()
	b.Close()

	_, err := b.Compile(context.Background(), "x", CompileOptions{})
	var subErr *session.SubprocessError
	assert.True(t, errors.As(err, &subErr))
}
