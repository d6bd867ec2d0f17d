package api

import (
	"encoding/json"
	"fmt"
)

// APIError is a non-2xx response from the backend API which isn't
// otherwise classified. It carries the status and raw body so callers
// can inspect the server's `detail` message.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned status %d: %s", e.StatusCode, e.Detail())
}

// Detail extracts the server's error detail from the response body.
// The API encodes errors as {"detail": "..."} and occasionally nests
// a further {"detail": {"detail": "..."}}. Falls back to the raw body.
func (e *APIError) Detail() string {
	return errorDetail(e.Body)
}

// NetworkError indicates the request never produced a response:
// connection failures, DNS errors, or a timed-out attempt.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError is a 429 from the API. RetryAfter is in seconds,
// zero when the server didn't say.
type RateLimitError struct {
	RetryAfter float64
	Body       []byte
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (retry after %.1fs)", e.RetryAfter)
}

// AuthenticationError is a 401. It's fatal for the process: the token
// is wrong and retrying won't fix it.
type AuthenticationError struct {
	Body []byte
}

func (e *AuthenticationError) Error() string { return "authentication failed (401)" }

func errorDetail(body []byte) string {
	var outer struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &outer); err != nil || len(outer.Detail) == 0 {
		return string(body)
	}
	var asString string
	if err := json.Unmarshal(outer.Detail, &asString); err == nil {
		return asString
	}
	var nested struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(outer.Detail, &nested); err == nil && nested.Detail != "" {
		return nested.Detail
	}
	return string(outer.Detail)
}
