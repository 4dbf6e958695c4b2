// Package drop manages host-side objects that are exposed to the engine
// under test only through callbacks, plus the recursive conversion of
// host values into wire-safe JSON values.
//
// A drop never crosses the pipe. It is registered here, replaced by an
// opaque marker, and resolved later when the engine asks for a property,
// a method result, or its members mid-render.
package drop

import "fmt"

// MarkerKey is the reserved object key identifying a drop marker on the
// wire: {"_rpc_drop": "drop_3", "type": "UserDrop"}.
const MarkerKey = "_rpc_drop"

// Registry assigns opaque ids to drops for the duration of one test
// case (an epoch). It is an explicit object with a clear lifecycle:
// populated while a render is in flight, cleared before the next case.
// Only the harness goroutine touches it, so there is no locking.
//
// Entries are lookup-only associations; the registry never owns the
// values and a Clear drops every reference.
type Registry struct {
	next    int
	entries map[string]any
}

// NewRegistry returns an empty registry whose first id is drop_1.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]any)}
}

// Register stores v and returns its id. Ids are monotonic within an
// epoch and small enough to read in a protocol trace.
func (r *Registry) Register(v any) string {
	r.next++
	id := fmt.Sprintf("drop_%d", r.next)
	r.entries[id] = v
	return id
}

// Lookup returns the value registered under id.
func (r *Registry) Lookup(id string) (any, bool) {
	v, ok := r.entries[id]
	return v, ok
}

// Clear empties the registry and resets the id counter, so ids restart
// at drop_1 for the next test case and never leak across cases.
func (r *Registry) Clear() {
	r.next = 0
	r.entries = make(map[string]any)
}

// Len reports the number of live entries. Introspection only.
func (r *Registry) Len() int {
	return len(r.entries)
}
