package wire

import "fmt"

// Reserved protocol error codes. The -327xx block follows the JSON-RPC
// convention; the -3200x block is specific to the template bridge.
const (
	CodeParseError     = -32000 // template failed to parse in the engine
	CodeRenderError    = -32001 // template failed to render in the engine
	CodeDropError      = -32002 // callback referenced an unknown drop or member
	CodeJSONParse      = -32700 // unparseable line on the wire
	CodeInvalidRequest = -32600 // envelope shape violation
	CodeMethodNotFound = -32601 // unknown method name
)

// ProtocolError reports a violation of the wire protocol itself: bad
// JSON, an impossible envelope shape, an unknown method. It is always
// fatal to the current call and signals a bug in the bridge or the
// engine under test, never a template-level failure.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}
