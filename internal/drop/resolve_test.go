package drop

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	FirstName string
	Age       int
}

func (p *person) DropName() string { return "Person" }

func (p *person) Greeting() string { return "hello " + p.FirstName }

func (p *person) Shout(word string) string { return word + "!" }

func (p *person) Fail() (string, error) { return "", errors.New("boom") }

type customDrop struct {
	props map[string]any
}

func (d *customDrop) DropName() string { return "Custom" }

func (d *customDrop) GetProperty(name string) (any, error) {
	v, ok := d.props[name]
	if !ok {
		return nil, fmt.Errorf("no property %q", name)
	}
	return v, nil
}

func (d *customDrop) CallMethod(name string, args []any) (any, error) {
	if name == "echo" && len(args) == 1 {
		return args[0], nil
	}
	return nil, fmt.Errorf("no method %q", name)
}

type listDrop struct{ items []any }

func (d *listDrop) DropName() string        { return "List" }
func (d *listDrop) Iterate() ([]any, error) { return d.items, nil }

func TestResolveGetPropertyGetter(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&customDrop{props: map[string]any{"name": "Alice"}})

	v, err := ResolveGet(reg, id, "name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", v)
}

func TestResolveGetExportedField(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&person{FirstName: "Bob", Age: 41})

	v, err := ResolveGet(reg, id, "first_name")
	require.NoError(t, err)
	assert.Equal(t, "Bob", v)

	age, err := ResolveGet(reg, id, "age")
	require.NoError(t, err)
	assert.Equal(t, int64(41), age)
}

func TestResolveGetNiladicMethod(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&person{FirstName: "Ann"})

	v, err := ResolveGet(reg, id, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello Ann", v)
}

func TestResolveGetUnknown(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&person{})

	_, err := ResolveGet(reg, id, "salary")
	var derr *DropError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, id, derr.DropID)
	assert.Equal(t, "salary", derr.Member)
}

func TestResolveGetUnknownDropID(t *testing.T) {
	reg := NewRegistry()
	_, err := ResolveGet(reg, "drop_42", "x")
	var derr *DropError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Reason, "unknown drop id")
}

func TestResolveGetWrapsNestedDrop(t *testing.T) {
	reg := NewRegistry()
	child := &person{FirstName: "Kid"}
	id := reg.Register(&customDrop{props: map[string]any{"child": child}})

	v, err := ResolveGet(reg, id, "child")
	require.NoError(t, err)

	// A drop-valued property comes back as a fresh marker, so the
	// engine can keep walking the object graph callback by callback.
	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Person", m["type"])
	_, registered := reg.Lookup(m[MarkerKey].(string))
	assert.True(t, registered)
}

func TestResolveCallToS(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&customDrop{})

	v, err := ResolveCall(reg, id, "to_s", nil)
	require.NoError(t, err)
	_, isString := v.(string)
	assert.True(t, isString)
}

func TestResolveCallMethodCaller(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&customDrop{})

	v, err := ResolveCall(reg, id, "echo", []any{"back"})
	require.NoError(t, err)
	assert.Equal(t, "back", v)
}

func TestResolveCallReflected(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&person{})

	v, err := ResolveCall(reg, id, "shout", []any{"hey"})
	require.NoError(t, err)
	assert.Equal(t, "hey!", v)
}

func TestResolveCallArityMismatch(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&person{})

	_, err := ResolveCall(reg, id, "shout", []any{"a", "b"})
	var derr *DropError
	require.ErrorAs(t, err, &derr)
}

func TestResolveCallMethodError(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&person{})

	_, err := ResolveCall(reg, id, "fail", []any{})
	var derr *DropError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Reason, "boom")
}

func TestResolveIterateIterator(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&listDrop{items: []any{1, "two"}})

	items, err := ResolveIterate(reg, id)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), "two"}, items)
}

func TestResolveIterateNotIterable(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&person{})

	_, err := ResolveIterate(reg, id)
	var derr *DropError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Reason, "not iterable")
}

func TestExportedName(t *testing.T) {
	assert.Equal(t, "FirstName", exportedName("first_name"))
	assert.Equal(t, "Age", exportedName("age"))
	assert.Equal(t, "ToS", exportedName("to_s"))
	assert.Equal(t, "A", exportedName("_a_"))
}
