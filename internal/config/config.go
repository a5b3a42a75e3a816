package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults applied by Default and used when the corresponding field is unset.
const (
	DefaultAddr            = "0.0.0.0:9000"
	DefaultProviderPrefix  = "stt_whisper2"
	DefaultProviderName    = "Nextcloud Local Speech-To-Text Whisper"
	DefaultTaskType        = "core:audio2text"
	DefaultExpectedRuntime = 120
	DefaultModelsDir       = "./models"
	DefaultPersistentDir   = "./data"
)

// Config holds runtime parameters for the worker.
// Durations are expressed in whole seconds to keep every file format simple.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
	LogFile   string `json:"log_file" yaml:"log_file" toml:"log_file"`

	ModelsDir     string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	PersistentDir string `json:"persistent_dir" yaml:"persistent_dir" toml:"persistent_dir"`
	// Device forces the compute device class. Empty means use the reported one.
	Device string `json:"device" yaml:"device" toml:"device"`

	Provider     ProviderConfig     `json:"provider" yaml:"provider" toml:"provider"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator" toml:"orchestrator"`
	Worker       WorkerConfig       `json:"worker" yaml:"worker" toml:"worker"`
	Transcriber  TranscriberConfig  `json:"transcriber" yaml:"transcriber" toml:"transcriber"`
	Journal      JournalConfig      `json:"journal" yaml:"journal" toml:"journal"`
	CORS         CORSConfig         `json:"cors" yaml:"cors" toml:"cors"`
}

// ProviderConfig describes how model ids map onto provider identities.
type ProviderConfig struct {
	Prefix             string `json:"prefix" yaml:"prefix" toml:"prefix"`
	DisplayName        string `json:"display_name" yaml:"display_name" toml:"display_name"`
	TaskType           string `json:"task_type" yaml:"task_type" toml:"task_type"`
	ExpectedRuntimeSec int    `json:"expected_runtime_sec" yaml:"expected_runtime_sec" toml:"expected_runtime_sec"`
}

// OrchestratorConfig points at the task-processing service.
type OrchestratorConfig struct {
	URL               string `json:"url" yaml:"url" toml:"url"`
	AppID             string `json:"app_id" yaml:"app_id" toml:"app_id"`
	AppVersion        string `json:"app_version" yaml:"app_version" toml:"app_version"`
	AppSecret         string `json:"app_secret" yaml:"app_secret" toml:"app_secret"`
	User              string `json:"user" yaml:"user" toml:"user"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec" toml:"request_timeout_sec"`
	TLSInsecure       bool   `json:"tls_insecure" yaml:"tls_insecure" toml:"tls_insecure"`
}

// WorkerConfig tunes the dispatch loop wait policy.
type WorkerConfig struct {
	IdleIntervalSec         int `json:"idle_interval_sec" yaml:"idle_interval_sec" toml:"idle_interval_sec"`
	PostTriggerIntervalSec  int `json:"post_trigger_interval_sec" yaml:"post_trigger_interval_sec" toml:"post_trigger_interval_sec"`
	ErrorIntervalSec        int `json:"error_interval_sec" yaml:"error_interval_sec" toml:"error_interval_sec"`
	DisabledPollIntervalSec int `json:"disabled_poll_interval_sec" yaml:"disabled_poll_interval_sec" toml:"disabled_poll_interval_sec"`
	// RemoteLog forwards task-level info and error messages to the Nextcloud log.
	RemoteLog bool `json:"remote_log" yaml:"remote_log" toml:"remote_log"`
	// TempDir receives downloaded task input files. Empty means the OS default.
	TempDir string `json:"temp_dir" yaml:"temp_dir" toml:"temp_dir"`
}

// TranscriberConfig selects the inference backend.
type TranscriberConfig struct {
	Mode     string `json:"mode" yaml:"mode" toml:"mode"` // exec, stub
	Command  string `json:"command" yaml:"command" toml:"command"`
	Language string `json:"language" yaml:"language" toml:"language"`
}

// JournalConfig controls the local task-attempt history.
type JournalConfig struct {
	// Path to the SQLite file. Empty keeps the journal in memory.
	Path       string `json:"path" yaml:"path" toml:"path"`
	MaxEntries int    `json:"max_entries" yaml:"max_entries" toml:"max_entries"`
}

// CORSConfig is opt-in; without it no CORS middleware is mounted.
type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
}

// Default returns a Config populated with package defaults.
func Default() Config {
	return Config{
		Addr:          DefaultAddr,
		LogLevel:      "info",
		LogFormat:     "json",
		ModelsDir:     DefaultModelsDir,
		PersistentDir: DefaultPersistentDir,
		Provider: ProviderConfig{
			Prefix:             DefaultProviderPrefix,
			DisplayName:        DefaultProviderName,
			TaskType:           DefaultTaskType,
			ExpectedRuntimeSec: DefaultExpectedRuntime,
		},
		Orchestrator: OrchestratorConfig{
			URL:               "http://localhost",
			AppID:             "stt_whisper2",
			AppVersion:        "1.0.0",
			RequestTimeoutSec: 60,
		},
		Worker: WorkerConfig{
			IdleIntervalSec:         5,
			PostTriggerIntervalSec:  300,
			ErrorIntervalSec:        10,
			DisabledPollIntervalSec: 5,
			RemoteLog:               true,
		},
		Transcriber: TranscriberConfig{
			Mode: "exec",
		},
		Journal: JournalConfig{
			MaxEntries: 1000,
		},
	}
}

// IdleInterval is the base wait between polls when no task is available.
func (w WorkerConfig) IdleInterval() time.Duration { return seconds(w.IdleIntervalSec) }

// PostTriggerInterval replaces IdleInterval once a trigger has interrupted a wait.
func (w WorkerConfig) PostTriggerInterval() time.Duration { return seconds(w.PostTriggerIntervalSec) }

// ErrorInterval is the wait after a failed next-task call.
func (w WorkerConfig) ErrorInterval() time.Duration { return seconds(w.ErrorIntervalSec) }

// DisabledPollInterval is how often a disabled loop re-checks the gate.
func (w WorkerConfig) DisabledPollInterval() time.Duration { return seconds(w.DisabledPollIntervalSec) }

// RequestTimeout bounds a single call to the orchestration service.
func (o OrchestratorConfig) RequestTimeout() time.Duration { return seconds(o.RequestTimeoutSec) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Validate checks required fields and rejects out-of-range values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr must not be empty")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be one of json|console, got %q", c.LogFormat)
	}
	if c.Provider.Prefix == "" {
		return errors.New("provider.prefix must not be empty")
	}
	if strings.Contains(c.Provider.Prefix, ":") {
		return errors.New("provider.prefix must not contain ':'")
	}
	if c.Provider.TaskType == "" {
		return errors.New("provider.task_type must not be empty")
	}
	if c.Provider.ExpectedRuntimeSec <= 0 {
		return errors.New("provider.expected_runtime_sec must be positive")
	}
	if c.Orchestrator.URL == "" {
		return errors.New("orchestrator.url must not be empty")
	}
	if c.Orchestrator.AppID == "" {
		return errors.New("orchestrator.app_id must not be empty")
	}
	if c.Orchestrator.RequestTimeoutSec < 0 {
		return errors.New("orchestrator.request_timeout_sec must be >= 0")
	}
	w := c.Worker
	if w.IdleIntervalSec <= 0 || w.PostTriggerIntervalSec <= 0 || w.ErrorIntervalSec <= 0 || w.DisabledPollIntervalSec <= 0 {
		return errors.New("worker intervals must be positive")
	}
	switch c.Transcriber.Mode {
	case "exec":
		if strings.TrimSpace(c.Transcriber.Command) == "" {
			return errors.New("transcriber.command must be set when mode=exec")
		}
	case "stub":
	default:
		return fmt.Errorf("transcriber.mode must be one of exec|stub, got %q", c.Transcriber.Mode)
	}
	switch strings.ToLower(c.Device) {
	case "", "cpu", "cuda":
	default:
		return fmt.Errorf("device must be one of cpu|cuda, got %q", c.Device)
	}
	if c.Journal.MaxEntries < 0 {
		return errors.New("journal.max_entries must be >= 0")
	}
	return nil
}
