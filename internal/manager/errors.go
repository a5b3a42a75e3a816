package manager

import "errors"

// modelUnavailableError means the requested model id is not installed.
type modelUnavailableError struct{ id string }

// The message is what the orchestration service shows the user.
func (e modelUnavailableError) Error() string { return "Requested model is not available" }

// ModelID is the id that was asked for.
func (e modelUnavailableError) ModelID() string { return e.id }

// ErrModelUnavailable returns the error reported for an unknown model id.
func ErrModelUnavailable(id string) error { return modelUnavailableError{id: id} }

// IsModelUnavailable reports whether err (or anything it wraps) is a missing model.
func IsModelUnavailable(err error) bool {
	var e modelUnavailableError
	return errors.As(err, &e)
}
