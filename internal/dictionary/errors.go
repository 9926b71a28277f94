package dictionary

import (
	"fmt"
	"time"
)

// StatusError reports a non-200 response from the upstream API.
type StatusError struct {
	StatusCode int
	Body       string
	// RetryAfter holds the raw Retry-After header value, if any.
	RetryAfter string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status code %d: %s", e.StatusCode, e.Body)
}

// TimeoutError reports an upstream request exceeding the configured timeout.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream request timed out after %s: %v", e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ConnectionError reports a network-level failure reaching the upstream.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("upstream connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ParseError reports a structurally invalid upstream payload.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid upstream payload: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
