package types

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	Error string `json:"error"`
	// HTTP status code.
	Code int `json:"code"`
}

// CacheStatus summarizes the model cache for /status.
type CacheStatus struct {
	// Lifecycle state of the slot: empty, loading, ready or error.
	State string `json:"state"`
	// ID of the model currently held, if any.
	ModelID string `json:"model_id,omitempty"`
	// Device class of the held model.
	Device string `json:"device,omitempty"`
	// When the held model finished loading (unix seconds).
	LoadedAt int64 `json:"loaded_unix,omitempty"`
	// Total number of model loads since start.
	LoadsTotal uint64 `json:"loads_total"`
	// Last load error, if the most recent load failed.
	LastError string `json:"last_error,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Whether the worker is enabled to acquire tasks.
	Enabled bool `json:"enabled"`
	// Current base wait interval between idle polls, in seconds.
	WaitIntervalSec float64 `json:"wait_interval_seconds"`
	// Provider ids this worker serves.
	Providers []string `json:"providers"`
	Cache     CacheStatus `json:"cache"`
	// Most recent task attempt, if any.
	LastTask *TaskSummary `json:"last_task,omitempty"`
	// Uptime of the worker in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Entries []TaskSummary `json:"entries"`
}

// EnabledResponse is the AppAPI reply to PUT /enabled. An empty Error means
// the change was applied.
type EnabledResponse struct {
	Error string `json:"error"`
}

// HeartbeatResponse is the AppAPI liveness reply.
type HeartbeatResponse struct {
	Status string `json:"status"`
}
