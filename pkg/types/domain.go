package types

// Model is a speech-to-text model discovered on disk.
type Model struct {
	// Model id, the name of the model directory.
	ID string `json:"id"`
	// Provider id announced to the orchestration service (<prefix>:<id>).
	Provider string `json:"provider"`
	// Absolute path to the model directory.
	Path string `json:"path"`
	// Root directory the model was found in.
	Root string `json:"root"`
	// Device class the model loads on (cpu or cuda).
	Device string `json:"device"`
}

// TaskSummary describes one finished task attempt.
type TaskSummary struct {
	AttemptID  string  `json:"attempt_id"`
	TaskID     int64   `json:"task_id"`
	Provider   string  `json:"provider"`
	ModelID    string  `json:"model_id,omitempty"`
	Outcome    string  `json:"outcome"`
	Error      string  `json:"error,omitempty"`
	StartedAt  int64   `json:"started_unix"`
	DurationMS int64   `json:"duration_ms"`
	AudioSec   float64 `json:"audio_seconds,omitempty"`
}
