package drop

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userDrop struct {
	Name string
}

func (d *userDrop) DropName() string { return "UserDrop" }

type namedGetter struct{}

func (namedGetter) GetProperty(name string) (any, error) { return name, nil }

type labelStringer struct{ Label string }

func (s labelStringer) String() string { return s.Label }

type mapOnly struct{ n int }

func (m mapOnly) ToMap() map[string]any { return map[string]any{"n": m.n} }

type settings struct{ level int }

func (s *settings) ToMap() map[string]any { return map[string]any{"level": s.level} }

type chainConverter struct {
	label string
	next  *chainConverter
}

func (c *chainConverter) ToMap() map[string]any {
	return map[string]any{"label": c.label, "next": c.next}
}

type selfConverter struct{}

func (c selfConverter) ToMap() map[string]any { return map[string]any{"again": c} }

type tagMap map[string]string

func (tagMap) DropName() string { return "TagMap" }

func TestWrapPrimitives(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name  string
		input any
		want  any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"string", "hi", "hi"},
		{"int", 7, int64(7)},
		{"int32", int32(-3), int64(-3)},
		{"uint16", uint16(9), int64(9)},
		{"float", 2.5, 2.5},
		{"nan becomes null", math.NaN(), nil},
		{"pos inf becomes null", math.Inf(1), nil},
		{"neg inf becomes null", math.Inf(-1), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Wrap(tt.input, reg))
		})
	}
	assert.Equal(t, 0, reg.Len())
}

func TestWrapInvalidUTF8(t *testing.T) {
	reg := NewRegistry()
	got := Wrap("ok\xffbad", reg)
	assert.Equal(t, "ok�bad", got)
}

func TestWrapTime(t *testing.T) {
	reg := NewRegistry()
	ts := time.Date(2024, 6, 15, 12, 0, 0, 0, time.FixedZone("X", 3600))
	got := Wrap(ts, reg)
	assert.Equal(t, "2024-06-15T11:00:00Z", got)
}

func TestWrapRange(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, Wrap(Range{From: 1, To: 3}, reg).([]any))
	assert.Equal(t, []any{}, Wrap(Range{From: 5, To: 2}, reg).([]any))
}

func TestWrapContainers(t *testing.T) {
	reg := NewRegistry()

	got := Wrap(map[string]any{
		"list": []any{1, "two", nil},
		"deep": map[string]any{"k": true},
	}, reg)

	want := map[string]any{
		"list": []any{int64(1), "two", nil},
		"deep": map[string]any{"k": true},
	}
	assert.Equal(t, want, got)
}

func TestWrapNonStringMapKeys(t *testing.T) {
	reg := NewRegistry()
	got := Wrap(map[int]string{1: "one", 2: "two"}, reg)
	want := map[string]any{"1": "one", "2": "two"}
	assert.Equal(t, want, got)
}

func TestWrapDropBecomesMarker(t *testing.T) {
	reg := NewRegistry()
	got := Wrap(&userDrop{Name: "Alice"}, reg)

	m, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "drop_1", m[MarkerKey])
	assert.Equal(t, "UserDrop", m["type"])
	assert.Len(t, m, 2)

	v, ok := reg.Lookup("drop_1")
	require.True(t, ok)
	assert.Equal(t, "Alice", v.(*userDrop).Name)
}

func TestWrapNestedDrops(t *testing.T) {
	reg := NewRegistry()
	env := map[string]any{
		"user":  &userDrop{Name: "A"},
		"items": []any{&userDrop{Name: "B"}},
	}

	got := Wrap(env, reg).(map[string]any)
	assert.Equal(t, 2, reg.Len())
	_, isMarker := got["user"].(map[string]any)[MarkerKey]
	assert.True(t, isMarker)
}

func TestWrapStringerBecomesDrop(t *testing.T) {
	reg := NewRegistry()
	got := Wrap(labelStringer{Label: "x"}, reg)

	m, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "drop_1", m[MarkerKey])
	assert.Equal(t, "labelStringer", m["type"])
}

func TestWrapPropertyGetterBecomesDrop(t *testing.T) {
	reg := NewRegistry()
	got := Wrap(namedGetter{}, reg)
	_, ok := got.(map[string]any)[MarkerKey]
	assert.True(t, ok)
}

func TestWrapMapConverterFallback(t *testing.T) {
	reg := NewRegistry()
	got := Wrap(mapOnly{n: 5}, reg)
	assert.Equal(t, map[string]any{"n": int64(5)}, got)
	assert.Equal(t, 0, reg.Len())
}

func TestWrapPointerReceiverConverter(t *testing.T) {
	reg := NewRegistry()
	got := Wrap(&settings{level: 3}, reg)
	assert.Equal(t, map[string]any{"level": int64(3)}, got)
	assert.Equal(t, 0, reg.Len())
}

func TestWrapConverterPointerCycleTerminates(t *testing.T) {
	reg := NewRegistry()
	c := &chainConverter{label: "root"}
	c.next = c

	got := Wrap(c, reg)

	out, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "root", out["label"])
	assert.Equal(t, CircularPlaceholder, out["next"])
}

func TestWrapConverterSelfEmbeddingTerminates(t *testing.T) {
	reg := NewRegistry()

	got := Wrap(selfConverter{}, reg)

	// Each expansion returns a fresh map, so identity tracking never
	// fires; the depth bound must cut the chain off instead.
	depth := 0
	cur := got
	for {
		m, ok := cur.(map[string]any)
		if !ok {
			break
		}
		cur = m["again"]
		depth++
	}
	assert.Equal(t, CircularPlaceholder, cur)
	assert.LessOrEqual(t, depth, maxConverterDepth)
}

func TestWrapDropOnNamedMapKind(t *testing.T) {
	reg := NewRegistry()
	got := Wrap(tagMap{"a": "b"}, reg)

	m, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "drop_1", m[MarkerKey])
	assert.Equal(t, "TagMap", m["type"])

	v, ok := reg.Lookup("drop_1")
	require.True(t, ok)
	assert.Equal(t, tagMap{"a": "b"}, v)
}

func TestWrapNamedBasicKinds(t *testing.T) {
	type mode string
	type level int
	reg := NewRegistry()
	assert.Equal(t, "strict", Wrap(mode("strict"), reg))
	assert.Equal(t, int64(3), Wrap(level(3), reg))
}

func TestWrapCyclicMapTerminates(t *testing.T) {
	reg := NewRegistry()
	m := map[string]any{"name": "loop"}
	m["self"] = m

	got := Wrap(m, reg)

	out, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "loop", out["name"])
	assert.Equal(t, CircularPlaceholder, out["self"])
}

func TestWrapCyclicSliceTerminates(t *testing.T) {
	reg := NewRegistry()
	s := make([]any, 2)
	s[0] = "head"
	s[1] = s

	got := Wrap(s, reg)

	out, ok := got.([]any)
	require.True(t, ok)
	assert.Equal(t, "head", out[0])
	assert.Equal(t, CircularPlaceholder, out[1])
}

func TestWrapSharedReferenceIsNotACycle(t *testing.T) {
	reg := NewRegistry()
	shared := map[string]any{"v": 1}
	env := map[string]any{"a": shared, "b": shared}

	got := Wrap(env, reg).(map[string]any)

	// The same map referenced twice as a sibling wraps normally both
	// times; only self-reference triggers the placeholder.
	assert.Equal(t, map[string]any{"v": int64(1)}, got["a"])
	assert.Equal(t, map[string]any{"v": int64(1)}, got["b"])
}

func TestWrapMutualCycleTerminates(t *testing.T) {
	reg := NewRegistry()
	a := map[string]any{}
	b := map[string]any{"a": a}
	a["b"] = b

	got := Wrap(a, reg)

	out := got.(map[string]any)
	inner := out["b"].(map[string]any)
	assert.Equal(t, CircularPlaceholder, inner["a"])
}

func TestWrapFallbackString(t *testing.T) {
	reg := NewRegistry()
	got := Wrap(complex(1, 2), reg)
	assert.Equal(t, fmt.Sprintf("%v", complex(1, 2)), got)
}
