package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadCaseYAML(t *testing.T, yaml string) *Case {
	t.Helper()
	dir := t.TempDir()
	path := writeCase(t, dir, "case.yml", yaml)
	c, err := LoadCase(path)
	require.NoError(t, err)
	return c
}

func TestBuildEnvironmentPlainValues(t *testing.T) {
	c := loadCaseYAML(t, `
name: plain
template: x
output: x
environment:
  s: text
  n: 3
  list: [1, 2]
  nested:
    k: v
`)

	env, err := c.BuildEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "text", env["s"])
	assert.Equal(t, 3, env["n"])
	assert.Equal(t, []any{1, 2}, env["list"])
	assert.Equal(t, map[string]any{"k": "v"}, env["nested"])
}

func TestBuildEnvironmentStubDrop(t *testing.T) {
	c := loadCaseYAML(t, `
name: with_drop
template: x
output: x
environment:
  user:
    $drop:
      type: UserDrop
      properties:
        name: Alice
      methods:
        salute: hi
      text: "Alice!"
      items: [a, b]
`)

	env, err := c.BuildEnvironment()
	require.NoError(t, err)

	d, ok := env["user"].(*StubDrop)
	require.True(t, ok)
	assert.Equal(t, "UserDrop", d.DropName())

	v, err := d.GetProperty("name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", v)

	_, err = d.GetProperty("missing")
	require.Error(t, err)

	m, err := d.CallMethod("salute", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", m)

	items, err := d.Iterate()
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, items)

	assert.Equal(t, "Alice!", d.String())
}

func TestBuildEnvironmentNestedDrops(t *testing.T) {
	c := loadCaseYAML(t, `
name: nested_drops
template: x
output: x
environment:
  users:
    - $drop:
        type: U
        properties: { name: A }
    - plain
`)

	env, err := c.BuildEnvironment()
	require.NoError(t, err)

	list, ok := env["users"].([]any)
	require.True(t, ok)
	_, isDrop := list[0].(*StubDrop)
	assert.True(t, isDrop)
	assert.Equal(t, "plain", list[1])
}

func TestBuildEnvironmentRejectsBadDrop(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			"drop with sibling keys",
			`
name: n
template: x
output: x
environment:
  user:
    $drop: { type: U }
    extra: nope
`,
		},
		{
			"unknown drop field",
			`
name: n
template: x
output: x
environment:
  user:
    $drop:
      flavor: chocolate
`,
		},
		{
			"non-map drop",
			`
name: n
template: x
output: x
environment:
  user:
    $drop: just-a-string
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := loadCaseYAML(t, tt.yaml)
			_, err := c.BuildEnvironment()
			require.Error(t, err)
		})
	}
}

func TestStubDropDefaults(t *testing.T) {
	d := &StubDrop{}
	assert.Equal(t, "StubDrop", d.DropName())
	assert.Equal(t, "#<StubDrop>", d.String())
}
