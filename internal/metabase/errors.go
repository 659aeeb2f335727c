package metabase

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is matched by an APIError carrying a 401 status, which
// Session returns only after the single retry with a fresh token has also
// been rejected.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-success response from the Metabase API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("metabase %s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// ShapeError reports a response body that does not decode into the expected
// entity shape. The raw body is kept verbatim.
type ShapeError struct {
	Kind string
	Body string
	Err  error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("failed to parse %s response: %v\nbody: %s", e.Kind, e.Err, e.Body)
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

// LoginError reports a rejected POST /api/session.
type LoginError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("failed to log in to %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}
