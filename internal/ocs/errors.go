package ocs

import (
	"errors"
	"fmt"
	"net/http"
)

// OCS meta status codes used by AppAPI for failures.
const (
	StatusServerError  = 996
	StatusUnauthorised = 997
	StatusNotFound     = 998
	StatusUnknownError = 999
)

// TransportError is any failure talking to the orchestration service:
// network errors, non-2xx responses and OCS failure codes.
type TransportError struct {
	Op string
	// StatusCode is the HTTP status (0 for connection-level errors).
	StatusCode int
	// OCSCode is the envelope meta status code, when one was decoded.
	OCSCode int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.OCSCode != 0:
		return fmt.Sprintf("ocs %s: status %d (ocs %d): %s", e.Op, e.StatusCode, e.OCSCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("ocs %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("ocs %s: %s", e.Op, e.Message)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFound reports whether the service answered "not found".
func (e *TransportError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.OCSCode == StatusNotFound
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is a TransportError for a missing resource.
func IsNotFound(err error) bool {
	var e *TransportError
	return errors.As(err, &e) && e.NotFound()
}

// IsUnauthorised reports whether the service rejected our credentials.
func IsUnauthorised(err error) bool {
	var e *TransportError
	if !errors.As(err, &e) {
		return false
	}
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden || e.OCSCode == StatusUnauthorised
}
