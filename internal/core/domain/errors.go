package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a gateway call outcome. Stages only ever see one
// of these kinds, never a raw transport error.
type ErrorKind string

const (
	ErrKindRateLimited       ErrorKind = "rate_limited"
	ErrKindTimeout           ErrorKind = "timeout"
	ErrKindConnection        ErrorKind = "connection"
	ErrKindTLS               ErrorKind = "tls"
	ErrKindHTTP              ErrorKind = "http"
	ErrKindMalformedResponse ErrorKind = "malformed_response"
	ErrKindUnknown           ErrorKind = "unknown"
)

// APIError is the classified failure of one gateway call, surfaced after
// the retry loop gave up.
type APIError struct {
	Kind       ErrorKind
	StatusCode int // set for ErrKindHTTP
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind == ErrKindHTTP {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether the gateway retry loop may attempt the call
// again. Malformed payloads do not get better with retries.
func (e *APIError) Retryable() bool {
	return e.Kind != ErrKindMalformedResponse
}

// CountsAsFailure reports whether a pipeline error increments the
// per-member and global failure counters. Malformed payloads are data
// errors: terminal for the run, but not counted.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind != ErrKindMalformedResponse
	}
	return true
}

// IsNetworkError reports whether err indicates the service itself is
// unreachable, as opposed to a reachable service answering badly.
func IsNetworkError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case ErrKindConnection, ErrKindTimeout, ErrKindTLS:
		return true
	}
	return false
}
