package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Message is the single envelope type for everything that crosses the
// engine pipe. Exactly one shape is populated:
//
//   - Request:       ID + Method (+ Params)
//   - Notification:  Method (+ Params), no ID, no reply expected
//   - Response:      ID + Result
//   - ErrorResponse: ID + Error
//
// IDs are kept as raw JSON so correlation works byte-for-byte without
// caring whether the peer sends numbers or strings.
type Message struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the error member of an error response envelope.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NumberID encodes an integer correlation id as raw JSON.
func NumberID(id int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(id, 10))
}

// NewRequest builds a request envelope. Params must be JSON-marshalable.
func NewRequest(id int64, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{ID: NumberID(id), Method: method, Params: raw}, nil
}

// NewNotification builds a fire-and-forget envelope: no id, no reply.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{Method: method, Params: raw}, nil
}

// NewResponse builds a success response carrying the given result.
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Message{ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response for the given correlation id.
func NewErrorResponse(id json.RawMessage, code int, message string, data any) *Message {
	eo := &ErrorObject{Code: code, Message: message}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			eo.Data = raw
		}
	}
	return &Message{ID: id, Error: eo}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}

// IsRequest reports whether the message is request-shaped (a request or
// notification from the peer): the method member is present.
func (m *Message) IsRequest() bool {
	return m.Method != ""
}

// IsNotification reports whether the message is a request shape with no
// id, meaning the peer does not expect a reply.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether the message is response-shaped: a result or
// error member is present and no method is.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (len(m.Result) > 0 || m.Error != nil)
}

// IsError reports whether the message is specifically an error response.
func (m *Message) IsError() bool {
	return m.Method == "" && m.Error != nil
}

// EncodeLine serializes the envelope as a single line of JSON including
// the trailing newline. The output never contains embedded newlines:
// encoding/json escapes control characters inside strings.
func EncodeLine(m *Message) ([]byte, error) {
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return append(buf, '\n'), nil
}

// DecodeLine parses one line from the pipe into an envelope. Malformed
// input yields a *ProtocolError with CodeJSONParse; it never panics, and
// the caller's read loop stays usable for subsequent lines.
func DecodeLine(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, &ProtocolError{Code: CodeJSONParse, Message: "empty line on wire"}
	}
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, &ProtocolError{Code: CodeJSONParse, Message: fmt.Sprintf("malformed envelope: %v", err)}
	}
	if !m.IsRequest() && !m.IsResponse() {
		return nil, &ProtocolError{Code: CodeInvalidRequest, Message: "envelope has neither method nor result/error"}
	}
	return &m, nil
}
