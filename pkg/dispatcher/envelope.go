// Package dispatcher decodes request frames, invokes registered capabilities,
// and routes every result back to the request that asked for it.
package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/native-bridge/pkg/commsutil"
	"github.com/morezero/native-bridge/pkg/registry"
)

// Wire codes produced by the dispatcher itself. They follow the file-system
// bridge enumeration (0-9) so a caller can tell them apart from capability codes.
const (
	CodeLookupError     = 10
	CodeInvocationError = 11
	CodeProtocolError   = 12
)

// Request is the inbound envelope.
type Request struct {
	ID        int64  `json:"id"`
	Namespace string `json:"namespace"`
	Command   string `json:"command"`
	Args      []any  `json:"args"`
	IsAsync   bool   `json:"isAsync"`
}

// Ref returns the "namespace.command" target of the request.
func (r *Request) Ref() string {
	return r.Namespace + "." + r.Command
}

// Response is the outbound envelope. Result[0] is conventionally a numeric error code.
type Response struct {
	ID     int64 `json:"id"`
	Result []any `json:"result"`
}

// DecodeError is returned when a frame is not a valid request envelope.
type DecodeError struct {
	Message string
	id      int64
	hasID   bool
}

func (e *DecodeError) Error() string {
	return registry.CodeProtocol + ": " + e.Message
}

// ID returns the request id when it could be recovered from the frame.
func (e *DecodeError) ID() (int64, bool) {
	return e.id, e.hasID
}

// DecodeRequest parses one frame into a Request.
func DecodeRequest(frame []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := commsutil.DecodeFrame(frame, &fields); err != nil {
		return nil, &DecodeError{Message: fmt.Sprintf("frame is not a JSON object: %v", err)}
	}
	if fields == nil {
		return nil, &DecodeError{Message: "frame is not a JSON object"}
	}

	id, err := decodeID(fields["id"])
	if err != nil {
		return nil, &DecodeError{Message: err.Error()}
	}

	invalid := func(format string, args ...any) error {
		return &DecodeError{Message: fmt.Sprintf(format, args...), id: id, hasID: true}
	}

	req := &Request{ID: id, Args: []any{}}
	if req.Namespace, err = decodeName(fields["namespace"]); err != nil {
		return nil, invalid("namespace %v", err)
	}
	if req.Command, err = decodeName(fields["command"]); err != nil {
		return nil, invalid("command %v", err)
	}

	if raw, ok := fields["args"]; ok {
		var value any
		if err := commsutil.DecodeFrame(raw, &value); err != nil {
			return nil, invalid("args: %v", err)
		}
		switch v := value.(type) {
		case nil:
		case []any:
			req.Args = v
		default:
			return nil, invalid("args must be an array, got %T", value)
		}
	}

	if raw, ok := fields["isAsync"]; ok {
		var value any
		if err := commsutil.DecodeFrame(raw, &value); err != nil {
			return nil, invalid("isAsync: %v", err)
		}
		switch v := value.(type) {
		case nil:
		case bool:
			req.IsAsync = v
		default:
			return nil, invalid("isAsync must be a boolean, got %T", value)
		}
	}

	return req, nil
}

func decodeID(raw json.RawMessage) (int64, error) {
	if raw == nil {
		return 0, fmt.Errorf("missing id")
	}
	var value any
	if err := commsutil.DecodeFrame(raw, &value); err != nil {
		return 0, fmt.Errorf("id: %v", err)
	}
	n, ok := value.(json.Number)
	if !ok {
		return 0, fmt.Errorf("id must be an integer, got %T", value)
	}
	id, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("id must be an integer, got %s", n)
	}
	return id, nil
}

func decodeName(raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", fmt.Errorf("is missing")
	}
	var value any
	if err := commsutil.DecodeFrame(raw, &value); err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("must be a string, got %T", value)
	}
	if s == "" {
		return "", fmt.Errorf("must not be empty")
	}
	return s, nil
}
