package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
)

// Error is a non-2xx response from the backend. Field errors follow the
// Laravel validation shape, either nested under "errors" or at top level.
type Error struct {
	Status  int
	Method  string
	Path    string
	Code    string
	Message string
	Fields  map[string][]string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// FieldError returns the first message reported for field, or "".
func (e *Error) FieldError(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// FieldNames returns the fields with at least one message, sorted.
func (e *Error) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		if len(v) > 0 {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsValidation reports whether err is a 422 response.
func IsValidation(err error) bool {
	return StatusOf(err) == http.StatusUnprocessableEntity
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not an
// *Error (for example a transport failure).
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// FieldError returns the first message for field when err is an *Error.
func FieldError(err error, field string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.FieldError(field)
	}
	return ""
}

func parseError(method, path string, status int, body []byte) *Error {
	e := &Error{Status: status, Method: method, Path: path, Fields: map[string][]string{}}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return e
	}

	for key, val := range raw {
		switch key {
		case "message":
			_ = json.Unmarshal(val, &e.Message)
		case "error":
			var env struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			if json.Unmarshal(val, &env) == nil {
				e.Code = env.Code
				if e.Message == "" {
					e.Message = env.Message
				}
			} else {
				_ = json.Unmarshal(val, &e.Message)
			}
		case "errors":
			var fields map[string][]string
			if json.Unmarshal(val, &fields) == nil {
				for k, v := range fields {
					e.Fields[k] = v
				}
			}
		default:
			var msgs []string
			if json.Unmarshal(val, &msgs) == nil && len(msgs) > 0 {
				if _, seen := e.Fields[key]; !seen {
					e.Fields[key] = msgs
				}
			}
		}
	}
	return e
}
