package drop

import (
	"fmt"

	"github.com/liquidlab/liquidspec/internal/wire"
)

// Caller issues a callback request to the peer and returns the decoded
// response envelope. The engine side of the bridge implements this over
// its stdio stream.
type Caller interface {
	Callback(method string, params any) (*wire.Message, error)
}

// Proxy stands in for a host-side drop inside the engine process. Every
// access crosses the pipe as a fresh callback request.
type Proxy struct {
	ID     string
	Type   string
	caller Caller
}

// Get resolves a property through a drop_get callback.
func (p *Proxy) Get(property string) (any, error) {
	resp, err := p.caller.Callback(wire.MethodDropGet, wire.DropGetParams{DropID: p.ID, Property: property})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("drop_get %s.%s: %s", p.ID, property, resp.Error.Message)
	}
	var result wire.DropValueResult
	if err := wire.DecodeResult(resp, &result); err != nil {
		return nil, err
	}
	return Unwrap(result.Value, p.caller), nil
}

// Call invokes a method through a drop_call callback.
func (p *Proxy) Call(method string, args []any) (any, error) {
	resp, err := p.caller.Callback(wire.MethodDropCall, wire.DropCallParams{DropID: p.ID, Method: method, Args: args})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("drop_call %s.%s: %s", p.ID, method, resp.Error.Message)
	}
	var result wire.DropValueResult
	if err := wire.DecodeResult(resp, &result); err != nil {
		return nil, err
	}
	return Unwrap(result.Value, p.caller), nil
}

// Members fetches the drop's members through a drop_iterate callback.
func (p *Proxy) Members() ([]any, error) {
	resp, err := p.caller.Callback(wire.MethodDropIterate, wire.DropIterateParams{DropID: p.ID})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("drop_iterate %s: %s", p.ID, resp.Error.Message)
	}
	var result wire.DropItemsResult
	if err := wire.DecodeResult(resp, &result); err != nil {
		return nil, err
	}
	out := make([]any, len(result.Items))
	for i, item := range result.Items {
		out[i] = Unwrap(item, p.caller)
	}
	return out, nil
}

// Unwrap is the inverse of Wrap for the engine side: it walks a decoded
// wire value and reconstitutes drop markers as Proxy objects bound to
// the given Caller. Plain containers are rebuilt element-wise.
func Unwrap(v any, c Caller) any {
	switch val := v.(type) {
	case map[string]any:
		if id, ok := val[MarkerKey].(string); ok {
			typeName, _ := val["type"].(string)
			return &Proxy{ID: id, Type: typeName, caller: c}
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Unwrap(elem, c)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Unwrap(elem, c)
		}
		return out
	default:
		return v
	}
}
