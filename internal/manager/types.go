package manager

import "time"

// State is the lifecycle state of the cache slot.
type State string

const (
	StateEmpty   State = "empty"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Snapshot is a read-only projection of the cache.
type Snapshot struct {
	State    State
	ModelID  string
	Device   string
	LoadedAt time.Time
	Loads    uint64
	Err      string
}
