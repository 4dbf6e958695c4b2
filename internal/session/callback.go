package session

import (
	"errors"

	"github.com/liquidlab/liquidspec/internal/drop"
	"github.com/liquidlab/liquidspec/internal/wire"
)

// serviceCallback answers one request-shaped message from the engine.
// Drop failures are answered locally with an error envelope and never
// surface to the harness caller; only a failure to write the reply is
// returned, since that means the pipe itself is gone.
func (s *Session) serviceCallback(msg *wire.Message) error {
	if msg.IsNotification() {
		s.logger.Warn("ignoring unexpected notification from engine", "method", msg.Method)
		return nil
	}

	reply, err := s.dispatchCallback(msg)
	if err != nil {
		var dropErr *drop.DropError
		if errors.As(err, &dropErr) {
			reply = wire.NewErrorResponse(msg.ID, wire.CodeDropError, dropErr.Error(), nil)
		} else {
			var protoErr *wire.ProtocolError
			if errors.As(err, &protoErr) {
				reply = wire.NewErrorResponse(msg.ID, protoErr.Code, protoErr.Message, nil)
			} else {
				reply = wire.NewErrorResponse(msg.ID, wire.CodeDropError, err.Error(), nil)
			}
		}
	}
	return s.writeMessage(reply)
}

func (s *Session) dispatchCallback(msg *wire.Message) (*wire.Message, error) {
	switch msg.Method {
	case wire.MethodDropGet:
		var params wire.DropGetParams
		if err := wire.DecodeParams(msg, &params); err != nil {
			return nil, err
		}
		value, err := drop.ResolveGet(s.drops, params.DropID, params.Property)
		if err != nil {
			return nil, err
		}
		return wire.NewResponse(msg.ID, wire.DropValueResult{Value: value})

	case wire.MethodDropCall:
		var params wire.DropCallParams
		if err := wire.DecodeParams(msg, &params); err != nil {
			return nil, err
		}
		value, err := drop.ResolveCall(s.drops, params.DropID, params.Method, params.Args)
		if err != nil {
			return nil, err
		}
		return wire.NewResponse(msg.ID, wire.DropValueResult{Value: value})

	case wire.MethodDropIterate:
		var params wire.DropIterateParams
		if err := wire.DecodeParams(msg, &params); err != nil {
			return nil, err
		}
		items, err := drop.ResolveIterate(s.drops, params.DropID)
		if err != nil {
			return nil, err
		}
		return wire.NewResponse(msg.ID, wire.DropItemsResult{Items: items})

	default:
		return nil, &wire.ProtocolError{
			Code:    wire.CodeMethodNotFound,
			Message: "unknown callback method " + msg.Method,
		}
	}
}
