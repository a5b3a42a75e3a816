// Package manager owns the loaded speech-to-text model. It is a single-slot
// cache: at most one Model is live at a time, and switching to another model
// fully releases the previous one before the next is loaded.
//
//   - cache.go: Cache, Get/Acquire and Close.
//   - types.go: slot state and Snapshot.
//   - status.go: Status projection for the control plane.
//   - errors.go: ErrModelUnavailable and IsModelUnavailable.
//   - events.go: lifecycle events and publishers.
//
// Get and Acquire are meant to be driven by one goroutine (the task loop).
// Snapshot and Status may be called concurrently from anywhere.
package manager
