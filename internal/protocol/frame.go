package protocol

import "encoding/json"

// Frame is a JSON-RPC 2.0 message: request, response, or notification.
type Frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// WireError is the on-wire JSON-RPC error object.
type WireError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsRequest reports whether the frame is a request or notification
// sent to us (it carries a method).
func (f Frame) IsRequest() bool { return f.Method != "" }

// IsNotification reports whether the frame is a notification: it has
// a method but no id.
func (f Frame) IsNotification() bool { return f.Method != "" && len(f.ID) == 0 }

// IsResponse reports whether the frame is a response to one of our
// requests: it has an id but no method.
func (f Frame) IsResponse() bool { return f.Method == "" && len(f.ID) > 0 }

func newRequestFrame(id int64, method string, params interface{}) (Frame, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Frame{}, err
	}
	idBytes, err := json.Marshal(id)
	if err != nil {
		return Frame{}, err
	}
	return Frame{JSONRPC: "2.0", ID: idBytes, Method: method, Params: raw}, nil
}

func newNotificationFrame(method string, params interface{}) (Frame, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}
