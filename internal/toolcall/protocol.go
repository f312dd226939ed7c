package toolcall

import "encoding/json"

// Request is one tool call sent to the server, newline-delimited JSON on
// stdin. IDs are caller-assigned and echoed back on the response.
type Request struct {
	ID        int64           `json:"id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response carries either a JSON result payload or an error flag with a
// message. Errors never cross the pipe as anything but this shape.
type Response struct {
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	IsError bool            `json:"isError,omitempty"`
	Error   string          `json:"error,omitempty"`
}
