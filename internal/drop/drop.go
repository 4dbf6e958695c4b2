package drop

// Drop is the explicit marker interface. A value implementing Drop is
// always exposed to the engine through callbacks, regardless of any
// other capability it has. DropName is the type label carried in the
// wire marker.
type Drop interface {
	DropName() string
}

// PropertyGetter answers drop_get callbacks. Returning an error marks
// the property as unsupported; the error text travels back to the
// engine in a drop error envelope.
type PropertyGetter interface {
	GetProperty(name string) (any, error)
}

// MethodCaller answers drop_call callbacks.
type MethodCaller interface {
	CallMethod(name string, args []any) (any, error)
}

// Iterator answers drop_iterate callbacks.
type Iterator interface {
	Iterate() ([]any, error)
}

// MapConverter lets an otherwise opaque value serialize as a plain map
// instead of becoming a drop or a string.
type MapConverter interface {
	ToMap() map[string]any
}

// Range is a closed integer interval. The wire format has no interval
// type, so Wrap expands a Range to the explicit list of its members.
type Range struct {
	From int
	To   int
}

// Members returns the values of the interval in order. An inverted
// range is empty.
func (r Range) Members() []any {
	if r.To < r.From {
		return []any{}
	}
	out := make([]any, 0, r.To-r.From+1)
	for i := r.From; i <= r.To; i++ {
		out = append(out, i)
	}
	return out
}
