package ocs

import (
	"bytes"
	"encoding/json"
)

// envelope is the OCS response wrapper.
type envelope struct {
	OCS struct {
		Meta struct {
			Status     string `json:"status"`
			StatusCode int    `json:"statuscode"`
			Message    string `json:"message"`
		} `json:"meta"`
		Data json.RawMessage `json:"data"`
	} `json:"ocs"`
}

// Task is a queued TaskProcessing task.
type Task struct {
	ID     int64          `json:"id"`
	Type   string         `json:"type"`
	Status string         `json:"status"`
	UserID string         `json:"userId"`
	AppID  string         `json:"appId"`
	Input  map[string]any `json:"input"`
}

// UnmarshalJSON accepts any JSON value for "input". Anything but an object
// leaves Input nil, so the task still decodes and can be failed and reported.
func (t *Task) UnmarshalJSON(b []byte) error {
	type plain Task
	var raw struct {
		plain
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = Task(raw.plain)
	t.Input = nil
	if in := bytes.TrimSpace(raw.Input); len(in) > 0 && in[0] == '{' {
		if err := json.Unmarshal(in, &t.Input); err != nil {
			return err
		}
	}
	return nil
}

// FileID returns the numeric id of the "input" file, if present.
func (t Task) FileID() (int64, bool) {
	switch v := t.Input["input"].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// ProviderRef names the provider a task was scheduled for.
type ProviderRef struct {
	Name string `json:"name"`
}

// UnmarshalJSON leaves Name empty when the provider is not an object with a
// string name. The task is then rejected as having an invalid provider.
func (p *ProviderRef) UnmarshalJSON(b []byte) error {
	var v struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		*p = ProviderRef{}
		return nil
	}
	*p = ProviderRef(v)
	return nil
}

// NextTask is one acquired task plus the provider it was assigned to.
type NextTask struct {
	Task     Task        `json:"task"`
	Provider ProviderRef `json:"provider"`
}

// Provider is a TaskProcessing provider registration.
type Provider struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	TaskType        string `json:"task_type"`
	ExpectedRuntime int    `json:"expected_runtime"`
}

// LogLevel follows the Nextcloud log levels.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarning
	LogError
	LogFatal
)
