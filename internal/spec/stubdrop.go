package spec

import "fmt"

// dropKey is the reserved environment key that turns a YAML map into a
// stub drop, so drop behavior is expressible in plain case files:
//
//	environment:
//	  user:
//	    $drop:
//	      type: UserDrop
//	      properties: { name: Alice }
//	      text: "Alice"
//	      items: [a, b]
const dropKey = "$drop"

// StubDrop is a data-defined drop: its properties, methods, text form
// and members all come from the case file. The engine under test can
// only reach them through callbacks.
type StubDrop struct {
	Type       string
	Properties map[string]any
	Methods    map[string]any
	Text       string
	Items      []any
}

// DropName implements drop.Drop.
func (d *StubDrop) DropName() string {
	if d.Type != "" {
		return d.Type
	}
	return "StubDrop"
}

// GetProperty implements drop.PropertyGetter.
func (d *StubDrop) GetProperty(name string) (any, error) {
	v, ok := d.Properties[name]
	if !ok {
		return nil, fmt.Errorf("undefined property %q", name)
	}
	return v, nil
}

// CallMethod implements drop.MethodCaller. Stub methods ignore their
// arguments and return the canned value; to_s returns Text.
func (d *StubDrop) CallMethod(name string, _ []any) (any, error) {
	if v, ok := d.Methods[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("undefined method %q", name)
}

// Iterate implements drop.Iterator.
func (d *StubDrop) Iterate() ([]any, error) {
	return d.Items, nil
}

func (d *StubDrop) String() string {
	if d.Text != "" {
		return d.Text
	}
	return "#<" + d.DropName() + ">"
}

// BuildEnvironment converts a case's raw YAML environment into runtime
// values, reconstituting $drop declarations as *StubDrop. Containers
// are rebuilt recursively so drops nest inside lists and maps.
func (c *Case) BuildEnvironment() (map[string]any, error) {
	out := make(map[string]any, len(c.Environment))
	for k, v := range c.Environment {
		built, err := buildValue(v)
		if err != nil {
			return nil, fmt.Errorf("environment %q: %w", k, err)
		}
		out[k] = built
	}
	return out, nil
}

func buildValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if raw, ok := val[dropKey]; ok {
			if len(val) != 1 {
				return nil, fmt.Errorf("%s must be the only key of its map", dropKey)
			}
			return buildStubDrop(raw)
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			built, err := buildValue(elem)
			if err != nil {
				return nil, err
			}
			out[k] = built
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			built, err := buildValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = built
		}
		return out, nil
	default:
		return v, nil
	}
}

func buildStubDrop(raw any) (*StubDrop, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s value must be a map", dropKey)
	}
	d := &StubDrop{}
	for k, v := range m {
		switch k {
		case "type":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s.type must be a string", dropKey)
			}
			d.Type = s
		case "properties":
			props, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s.properties must be a map", dropKey)
			}
			d.Properties = props
		case "methods":
			methods, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s.methods must be a map", dropKey)
			}
			d.Methods = methods
		case "text":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s.text must be a string", dropKey)
			}
			d.Text = s
		case "items":
			items, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("%s.items must be a list", dropKey)
			}
			d.Items = items
		default:
			return nil, fmt.Errorf("unknown %s field %q", dropKey, k)
		}
	}
	return d, nil
}
