package drop

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// CircularPlaceholder is emitted for a reference that is encountered
// again while it is still being wrapped. Returning a terminal literal
// keeps the wire value finite; the alternative (reusing the partially
// built value) would leak incomplete state to the engine.
const CircularPlaceholder = "[circular]"

// invalidRune replaces byte sequences that are not valid UTF-8. The
// wire must always carry valid text.
const invalidRune = "�"

// Wrap converts an arbitrary host value into a wire-safe JSON value:
// nil, bool, int64, float64, string, []any or map[string]any.
//
// Primitives pass through (non-finite floats become nil, invalid UTF-8
// is replaced). Containers are wrapped element-wise, preserving list
// order and coercing map keys to strings. A Range expands to its
// members. Anything else is tested against the drop predicate in fixed
// priority order; matches are registered in reg and replaced by a
// marker object. Values that are none of the above fall back to a map
// conversion when they expose one, else to their string form.
func Wrap(v any, reg *Registry) any {
	return wrap(v, reg, &wrapState{seen: make(map[uintptr]bool)})
}

// maxConverterDepth bounds nested ToMap expansions. Value-receiver
// converters have no stable identity to key the seen set on, so a
// converter whose result re-embeds the converter itself is cut off by
// depth instead.
const maxConverterDepth = 64

// wrapState carries the identity-keyed visited set and the converter
// expansion depth through the recursion. Seen entries are added before
// descending into a container and removed after, so only true cycles
// hit the placeholder; shared references are wrapped normally each time
// they appear.
type wrapState struct {
	seen      map[uintptr]bool
	converted int
}

func wrap(v any, reg *Registry, st *wrapState) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		return val
	case string:
		return strings.ToValidUTF8(val, invalidRune)
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return wrapFloat(float64(val))
	case float64:
		return wrapFloat(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case Range:
		return wrap(val.Members(), reg, st)
	}

	rv := reflect.ValueOf(v)

	// Dropness is decided before structural descent so a pointer that
	// happens to point at a struct still gets callback treatment.
	if isDropLike(v, rv) {
		return marker(reg.Register(v), dropTypeName(v))
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return wrapList(rv, reg, st)
	case reflect.Map:
		return wrapMap(rv, reg, st)
	}

	// Named basic kinds (type Mode string, type Level int, ...).
	switch rv.Kind() {
	case reflect.String:
		return strings.ToValidUTF8(rv.String(), invalidRune)
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return wrapFloat(rv.Float())
	}

	// Converters are checked before pointer indirection so the usual
	// pointer-receiver ToMap is seen; after a deref only value-receiver
	// methods would remain in the method set.
	if mc, ok := v.(MapConverter); ok && !(rv.Kind() == reflect.Ptr && rv.IsNil()) {
		return wrapConverted(mc, rv, reg, st)
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return wrap(rv.Elem().Interface(), reg, st)
	}

	return strings.ToValidUTF8(fmt.Sprintf("%v", v), invalidRune)
}

// wrapConverted expands a MapConverter. Pointer converters get true
// cycle detection through the seen set; everything is additionally
// bounded by maxConverterDepth since a fresh result map defeats
// identity tracking.
func wrapConverted(mc MapConverter, rv reflect.Value, reg *Registry, st *wrapState) any {
	if rv.Kind() == reflect.Ptr {
		key := rv.Pointer()
		if st.seen[key] {
			return CircularPlaceholder
		}
		st.seen[key] = true
		defer delete(st.seen, key)
	}
	if st.converted >= maxConverterDepth {
		return CircularPlaceholder
	}
	st.converted++
	defer func() { st.converted-- }()
	return wrap(mc.ToMap(), reg, st)
}

func wrapFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func wrapList(rv reflect.Value, reg *Registry, st *wrapState) any {
	if rv.Kind() == reflect.Slice {
		if rv.IsNil() {
			return nil
		}
		key := rv.Pointer()
		if st.seen[key] {
			return CircularPlaceholder
		}
		st.seen[key] = true
		defer delete(st.seen, key)
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = wrap(rv.Index(i).Interface(), reg, st)
	}
	return out
}

func wrapMap(rv reflect.Value, reg *Registry, st *wrapState) any {
	if rv.IsNil() {
		return nil
	}
	key := rv.Pointer()
	if st.seen[key] {
		return CircularPlaceholder
	}
	st.seen[key] = true
	defer delete(st.seen, key)

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().Interface()
		ks, ok := k.(string)
		if !ok {
			ks = fmt.Sprint(k)
		}
		out[strings.ToValidUTF8(ks, invalidRune)] = wrap(iter.Value().Interface(), reg, st)
	}
	return out
}

func marker(id, typeName string) map[string]any {
	return map[string]any{
		MarkerKey: id,
		"type":    typeName,
	}
}

// isDropLike evaluates the drop predicate in fixed priority order:
// explicit marker interface, then a custom text affordance, then keyed
// access capability. Declaring DropName is an unambiguous opt-in and is
// honored on any underlying kind; the structural checks run only for
// struct and pointer-to-struct values so plain data stays plain data.
func isDropLike(v any, rv reflect.Value) bool {
	if _, ok := v.(Drop); ok {
		return true
	}
	kind := rv.Kind()
	base := kind
	if kind == reflect.Ptr && !rv.IsNil() {
		base = rv.Elem().Kind()
	}
	if base != reflect.Struct {
		return false
	}
	// time.Time was handled before this point, so a Stringer here is a
	// deliberate render-as-text affordance.
	if _, ok := v.(fmt.Stringer); ok {
		return true
	}
	if _, ok := v.(PropertyGetter); ok {
		return true
	}
	return false
}

// dropTypeName picks the wire type label: the drop's declared name when
// it has one, else the Go type name without package path.
func dropTypeName(v any) string {
	if d, ok := v.(Drop); ok {
		if name := d.DropName(); name != "" {
			return name
		}
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
