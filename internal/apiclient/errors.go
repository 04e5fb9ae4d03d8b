package apiclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NetworkError is a transport-level failure with no HTTP response.
// It is never retried by the client.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx, non-401 response carrying the server's detail
// payload. The caller decides how to surface it.
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("api responded with status %d: %s", e.StatusCode, e.Detail)
}

// AuthError is a 401 that credential refresh could not resolve, or a
// second 401 after the single permitted retry.
type AuthError struct {
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authorization failed: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("authorization failed: %s", e.Detail)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is a 422 response with per-field details.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// errorEnvelope is the server's error body: detail is either a plain
// string or a list of field-level entries.
type errorEnvelope struct {
	Detail json.RawMessage `json:"detail"`
}

type fieldDetail struct {
	Loc []json.RawMessage `json:"loc"`
	Msg string            `json:"msg"`
}

// parseDetail extracts a human-readable detail string from an error body,
// falling back to the raw body when it is not the expected envelope.
func parseDetail(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	var env errorEnvelope
	if err := json.Unmarshal(payload, &env); err == nil && len(env.Detail) > 0 {
		var s string
		if err := json.Unmarshal(env.Detail, &s); err == nil {
			return s
		}
		return string(env.Detail)
	}
	return strings.TrimSpace(string(payload))
}

// parseValidationError converts a 422 body into a ValidationError,
// mapping each entry's last location segment to the field name.
func parseValidationError(payload []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(payload, &env); err == nil && len(env.Detail) > 0 {
		var details []fieldDetail
		if err := json.Unmarshal(env.Detail, &details); err == nil {
			verr := &ValidationError{}
			for _, d := range details {
				field := "body"
				if n := len(d.Loc); n > 0 {
					var name string
					if err := json.Unmarshal(d.Loc[n-1], &name); err == nil {
						field = name
					}
				}
				verr.Fields = append(verr.Fields, FieldError{Field: field, Message: d.Msg})
			}
			return verr
		}
	}
	return &ValidationError{Fields: []FieldError{{Field: "body", Message: parseDetail(payload)}}}
}
