package drop

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// DropError reports a callback that referenced an unknown drop id or an
// unsupported property or method. It is recovered locally: the session
// answers the engine with an error envelope and the harness caller
// never sees it.
type DropError struct {
	DropID string
	Member string
	Reason string
}

func (e *DropError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("drop %s: %s", e.DropID, e.Reason)
	}
	return fmt.Sprintf("drop %s.%s: %s", e.DropID, e.Member, e.Reason)
}

// ResolveGet answers a drop_get callback: the named property of the
// drop registered under dropID, wrapped for the wire. Resolution order:
// the PropertyGetter capability, then an exported struct field, then a
// niladic exported method.
func ResolveGet(reg *Registry, dropID, property string) (any, error) {
	v, ok := reg.Lookup(dropID)
	if !ok {
		return nil, &DropError{DropID: dropID, Reason: "unknown drop id"}
	}
	if pg, ok := v.(PropertyGetter); ok {
		out, err := pg.GetProperty(property)
		if err != nil {
			return nil, &DropError{DropID: dropID, Member: property, Reason: err.Error()}
		}
		return Wrap(out, reg), nil
	}
	out, err := reflectGet(v, property)
	if err != nil {
		return nil, &DropError{DropID: dropID, Member: property, Reason: err.Error()}
	}
	return Wrap(out, reg), nil
}

// ResolveCall answers a drop_call callback. The reserved method name
// to_s renders the drop as text; everything else goes through the
// MethodCaller capability or an exported method of matching arity.
func ResolveCall(reg *Registry, dropID, method string, args []any) (any, error) {
	v, ok := reg.Lookup(dropID)
	if !ok {
		return nil, &DropError{DropID: dropID, Reason: "unknown drop id"}
	}
	if method == "to_s" {
		return fmt.Sprint(v), nil
	}
	if mc, ok := v.(MethodCaller); ok {
		out, err := mc.CallMethod(method, args)
		if err != nil {
			return nil, &DropError{DropID: dropID, Member: method, Reason: err.Error()}
		}
		return Wrap(out, reg), nil
	}
	out, err := reflectCall(v, method, args)
	if err != nil {
		return nil, &DropError{DropID: dropID, Member: method, Reason: err.Error()}
	}
	return Wrap(out, reg), nil
}

// ResolveIterate answers a drop_iterate callback with the drop's
// members, each wrapped for the wire.
func ResolveIterate(reg *Registry, dropID string) ([]any, error) {
	v, ok := reg.Lookup(dropID)
	if !ok {
		return nil, &DropError{DropID: dropID, Reason: "unknown drop id"}
	}
	var items []any
	switch it := v.(type) {
	case Iterator:
		got, err := it.Iterate()
		if err != nil {
			return nil, &DropError{DropID: dropID, Reason: err.Error()}
		}
		items = got
	default:
		rv := reflect.ValueOf(v)
		for rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, &DropError{DropID: dropID, Reason: "drop is not iterable"}
		}
		for i := 0; i < rv.Len(); i++ {
			items = append(items, rv.Index(i).Interface())
		}
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = Wrap(item, reg)
	}
	return out, nil
}

// reflectGet reads an exported field or calls a niladic method named
// after the property. Wire properties are snake_case; Go members are
// CamelCase, so "first_name" resolves FirstName.
func reflectGet(v any, property string) (any, error) {
	name := exportedName(property)
	rv := reflect.ValueOf(v)
	elem := rv
	for elem.Kind() == reflect.Ptr {
		if elem.IsNil() {
			return nil, fmt.Errorf("nil drop")
		}
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Struct {
		if f := elem.FieldByName(name); f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	}
	if m := rv.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 {
		return callMethodValue(m, nil)
	}
	return nil, fmt.Errorf("no such property")
}

func reflectCall(v any, method string, args []any) (any, error) {
	m := reflect.ValueOf(v).MethodByName(exportedName(method))
	if !m.IsValid() {
		return nil, fmt.Errorf("no such method")
	}
	if m.Type().NumIn() != len(args) {
		return nil, fmt.Errorf("method takes %d args, got %d", m.Type().NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		av := reflect.ValueOf(a)
		if !av.IsValid() || !av.Type().AssignableTo(m.Type().In(i)) {
			return nil, fmt.Errorf("arg %d: incompatible type", i)
		}
		in[i] = av
	}
	return callMethodValue(m, in)
}

// callMethodValue invokes m and untangles the (value) or (value, error)
// return shapes.
func callMethodValue(m reflect.Value, in []reflect.Value) (any, error) {
	out := m.Call(in)
	switch len(out) {
	case 1:
		return out[0].Interface(), nil
	case 2:
		if err, ok := out[1].Interface().(error); ok && err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported method signature")
	}
}

// exportedName converts a wire member name (snake_case) to the exported
// Go identifier (CamelCase).
func exportedName(member string) string {
	parts := strings.Split(member, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}
