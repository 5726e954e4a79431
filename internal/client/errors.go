package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// TransportError means the chat request failed or the stream broke before a
// terminal event. It is never retried.
type TransportError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("chat transport: status %d: %s", e.StatusCode, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("chat transport: %s: %v", e.Reason, e.Err)
	default:
		return "chat transport: " + e.Reason
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError carries the backend's human readable detail for a failed call.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return e.Detail
}

type errorBody struct {
	Detail string `json:"detail"`
}

const maxErrorBody = 64 << 10

// readDetail extracts the `detail` string of an error response, falling back
// to the status text.
func readDetail(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Detail != "" {
		return eb.Detail
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
