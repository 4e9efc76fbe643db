package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// APIError is returned for every failed request. Status 0 means no response
// was received (network failure, DNS, timeout).
type APIError struct {
	Status  int
	Message string
	Body    json.RawMessage
	Err     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote unreachable: %s", e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses onto sentinels so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}
	return e.Err
}

// StatusOf returns the HTTP status carried by err, 0 when unreachable, or
// -1 when err is not an *APIError.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return -1
}

// IsUnreachable reports whether err means the backend could not be reached.
func IsUnreachable(err error) bool {
	return StatusOf(err) == 0
}

// IsRejected reports whether the backend answered with an error status.
func IsRejected(err error) bool {
	return StatusOf(err) >= 400
}

// errorBody covers the shapes the backend uses: message as a string or a
// list of validation messages, with an optional error title.
type errorBody struct {
	Message json.RawMessage `json:"message"`
	Error   string          `json:"error"`
}

func newHTTPError(status int, contentType string, body []byte) *APIError {
	e := &APIError{Status: status, Message: http.StatusText(status)}
	if !strings.Contains(contentType, "json") || len(body) == 0 {
		return e
	}
	e.Body = json.RawMessage(body)

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return e
	}
	var msg string
	var msgs []string
	switch {
	case json.Unmarshal(eb.Message, &msg) == nil && msg != "":
		e.Message = msg
	case json.Unmarshal(eb.Message, &msgs) == nil && len(msgs) > 0:
		e.Message = strings.Join(msgs, "; ")
	case eb.Error != "":
		e.Message = eb.Error
	}
	return e
}
