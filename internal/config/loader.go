package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Loader reads a configuration file and applies environment overrides.
// Tests can override Lookup to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
}

// Load is shorthand for Loader{}.Load(path).
func Load(path string) (Config, error) {
	return Loader{}.Load(path)
}

// Load starts from Default, merges the file at path (if any), applies
// environment overrides and validates the result. The file format is chosen
// by extension: .yaml/.yml, .json, .toml.
func (l Loader) Load(path string) (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	l.applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	case ".json":
		err = json.Unmarshal(b, cfg)
	case ".toml":
		err = toml.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("config: unsupported config extension: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv maps the AppAPI deployment variables and STTWORKER_* overrides.
func (l Loader) applyEnv(cfg *Config) {
	host, hostOK := l.lookup("APP_HOST")
	port, portOK := l.lookup("APP_PORT")
	if hostOK || portOK {
		h, p, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			h, p = "0.0.0.0", "9000"
		}
		if hostOK {
			h = host
		}
		if portOK {
			p = port
		}
		cfg.Addr = net.JoinHostPort(h, p)
	}
	l.overrideString(&cfg.Addr, "STTWORKER_ADDR")
	l.overrideString(&cfg.LogLevel, "STTWORKER_LOG_LEVEL")
	l.overrideString(&cfg.LogFormat, "STTWORKER_LOG_FORMAT")
	l.overrideString(&cfg.LogFile, "STTWORKER_LOG_FILE")
	l.overrideString(&cfg.ModelsDir, "STTWORKER_MODELS_DIR")
	l.overrideString(&cfg.PersistentDir, "APP_PERSISTENT_STORAGE")
	l.overrideString(&cfg.PersistentDir, "STTWORKER_PERSISTENT_DIR")
	l.overrideString(&cfg.Device, "STTWORKER_DEVICE")

	l.overrideString(&cfg.Orchestrator.URL, "NEXTCLOUD_URL")
	cfg.Orchestrator.URL = strings.TrimSuffix(strings.TrimRight(cfg.Orchestrator.URL, "/"), "/index.php")
	l.overrideString(&cfg.Orchestrator.AppID, "APP_ID")
	l.overrideString(&cfg.Orchestrator.AppVersion, "APP_VERSION")
	l.overrideString(&cfg.Orchestrator.AppSecret, "APP_SECRET")
	l.overrideInt(&cfg.Orchestrator.RequestTimeoutSec, "STTWORKER_REQUEST_TIMEOUT_SEC")
	l.overrideBool(&cfg.Orchestrator.TLSInsecure, "STTWORKER_TLS_INSECURE")

	l.overrideString(&cfg.Provider.Prefix, "STTWORKER_PROVIDER_PREFIX")
	l.overrideInt(&cfg.Worker.IdleIntervalSec, "STTWORKER_IDLE_INTERVAL_SEC")
	l.overrideInt(&cfg.Worker.PostTriggerIntervalSec, "STTWORKER_POST_TRIGGER_INTERVAL_SEC")
	l.overrideInt(&cfg.Worker.ErrorIntervalSec, "STTWORKER_ERROR_INTERVAL_SEC")
	l.overrideInt(&cfg.Worker.DisabledPollIntervalSec, "STTWORKER_DISABLED_POLL_INTERVAL_SEC")
	l.overrideBool(&cfg.Worker.RemoteLog, "STTWORKER_REMOTE_LOG")
	l.overrideString(&cfg.Worker.TempDir, "STTWORKER_TEMP_DIR")

	l.overrideString(&cfg.Transcriber.Mode, "STTWORKER_TRANSCRIBER_MODE")
	l.overrideString(&cfg.Transcriber.Command, "STTWORKER_TRANSCRIBER_COMMAND")
	l.overrideString(&cfg.Transcriber.Language, "STTWORKER_LANGUAGE")
	l.overrideString(&cfg.Journal.Path, "STTWORKER_JOURNAL_PATH")
}

func (l Loader) lookup(key string) (string, bool) {
	v, ok := l.Lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (l Loader) overrideString(target *string, key string) {
	if v, ok := l.lookup(key); ok {
		*target = v
	}
}

func (l Loader) overrideInt(target *int, key string) {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func (l Loader) overrideBool(target *bool, key string) {
	if v, ok := l.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
