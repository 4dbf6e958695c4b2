package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/liquidlab/liquidspec/internal/wire"
)

// TranscriptEntry is one envelope crossing the pipe, tagged with its
// direction from the harness's point of view.
type TranscriptEntry struct {
	Direction string `json:"direction"` // "send" or "recv"
	Method    string `json:"method,omitempty"`
	ID        string `json:"id,omitempty"`
	Params    any    `json:"params,omitempty"`
	Result    any    `json:"result,omitempty"`
	Error     any    `json:"error,omitempty"`
}

// Transcript records every envelope a session sends and receives, in
// order. It implements session.Recorder. Attach it via session.Config
// before the first call; entries accumulate until Reset.
type Transcript struct {
	Entries []TranscriptEntry
}

// Record appends one envelope to the transcript.
func (tr *Transcript) Record(direction string, m *wire.Message) {
	e := TranscriptEntry{Direction: direction, Method: m.Method}
	if len(m.ID) > 0 {
		e.ID = string(m.ID)
	}
	if len(m.Params) > 0 {
		e.Params = rawToAny(m.Params)
	}
	if len(m.Result) > 0 {
		e.Result = rawToAny(m.Result)
	}
	if m.Error != nil {
		e.Error = map[string]any{
			"code":    m.Error.Code,
			"message": m.Error.Message,
		}
	}
	tr.Entries = append(tr.Entries, e)
}

// Reset clears the transcript between cases.
func (tr *Transcript) Reset() {
	tr.Entries = nil
}

// AssertGolden compares the transcript against a golden file under
// testdata/golden. Canonical JSON keeps the serialized form stable
// across Go versions and map orderings.
//
// Regenerate with:
//
//	go test ./internal/harness -update
func (tr *Transcript) AssertGolden(t *testing.T, name string) {
	t.Helper()

	entries := make([]any, len(tr.Entries))
	for i, e := range tr.Entries {
		m := map[string]any{"direction": e.Direction}
		if e.Method != "" {
			m["method"] = e.Method
		}
		if e.ID != "" {
			m["id"] = e.ID
		}
		if e.Params != nil {
			m["params"] = e.Params
		}
		if e.Result != nil {
			m["result"] = e.Result
		}
		if e.Error != nil {
			m["error"] = e.Error
		}
		entries[i] = m
	}

	data, err := wire.MarshalCanonical(entries)
	if err != nil {
		t.Fatalf("marshal transcript: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// rawToAny decodes raw JSON into plain Go values so the transcript can
// be re-marshaled canonically. Numbers land as float64, which the
// canonical marshaler renders without trailing zeros.
func rawToAny(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
