package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"sttworker/internal/app"
	"sttworker/internal/httpapi"
	"sttworker/internal/journal"
	"sttworker/internal/manager"
	"sttworker/internal/ocs"
	"sttworker/internal/registry"
	"sttworker/internal/transcribe"
	"sttworker/internal/worker"
)

const (
	appID     = "stt_whisper2"
	appSecret = "s3cret"
)

type hit struct {
	Method string
	Path   string
	Query  map[string][]string
	Body   map[string]any
}

// nextcloud is an in-memory task queue speaking the OCS endpoints the
// worker uses.
type nextcloud struct {
	t     *testing.T
	audio []byte

	mu    sync.Mutex
	queue []map[string]any
	hits  []hit
}

func (n *nextcloud) enqueue(taskID, fileID int64, provider string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(n.queue, map[string]any{
		"task": map[string]any{
			"id":     taskID,
			"type":   "core:audio2text",
			"status": "STATUS_SCHEDULED",
			"userId": "alice",
			"appId":  "assistant",
			"input":  map[string]any{"input": fileID},
		},
		"provider": map[string]any{"name": provider},
	})
}

func (n *nextcloud) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := hit{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()}
	if b, _ := io.ReadAll(r.Body); len(b) > 0 {
		_ = json.Unmarshal(b, &h.Body)
	}
	n.mu.Lock()
	n.hits = append(n.hits, h)
	n.mu.Unlock()

	p := r.URL.Path
	switch {
	case p == "/ocs/v1.php/apps/app_api/ex-app/state":
		writeOCS(w, 0)
	case strings.HasSuffix(p, "/tasks_provider/next"):
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()
		writeOCS(w, next)
	case strings.Contains(p, "/file/"):
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(n.audio)
	default:
		writeOCS(w, nil)
	}
}

func (n *nextcloud) requests(method, suffix string) []hit {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []hit
	for _, h := range n.hits {
		if h.Method == method && strings.HasSuffix(h.Path, suffix) {
			out = append(out, h)
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func (n *nextcloud) waitFor(what string, cond func() bool) {
	n.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			n.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func writeOCS(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ocs": map[string]any{
			"meta": map[string]any{"status": "ok", "statuscode": 200, "message": "OK"},
			"data": data,
		},
	})
}

// wavBytes renders seconds of silence as 16 kHz mono PCM.
func wavBytes(t *testing.T, seconds int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: 16000}, Data: make([]int, 16000*seconds), SourceBitDepth: 16}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

type stack struct {
	nc      *nextcloud
	control *httptest.Server
	worker  *worker.Context
	cache   *manager.Cache
	tmpDir  string
}

// newStack wires the real components against a fake Nextcloud and starts
// the task loop. The stub engine stands in for native inference.
func newStack(t *testing.T, models ...string) *stack {
	t.Helper()
	log := zerolog.Nop()
	nc := &nextcloud{t: t, audio: wavBytes(t, 3)}
	ncSrv := httptest.NewServer(nc)
	t.Cleanup(ncSrv.Close)

	root := t.TempDir()
	for _, m := range models {
		if err := os.Mkdir(filepath.Join(root, m), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	noEnv := func(string) (string, bool) { return "", false }
	reg, err := registry.Discover(registry.Options{Engine: transcribe.StubEngine{Logger: log}, Lookup: noEnv, Logger: log}, root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	cache := manager.New(reg, log)
	cache.SetEventPublisher(worker.MetricsPublisher{})
	t.Cleanup(func() { _ = cache.Close() })

	tmpDir := t.TempDir()
	client, err := ocs.New(ocs.Options{
		BaseURL:    ncSrv.URL,
		AppID:      appID,
		AppVersion: "1.0.0",
		Secret:     appSecret,
		Timeout:    5 * time.Second,
		TempDir:    tmpDir,
		Logger:     log,
	})
	if err != nil {
		t.Fatalf("ocs: %v", err)
	}
	store, err := journal.Open(context.Background(), journal.Options{Path: filepath.Join(t.TempDir(), "journal.db")}, log)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	wc, err := worker.NewContext(worker.Options{
		Settings: worker.Settings{
			ProviderPrefix:       "stt_whisper2",
			DisplayName:          "Local Whisper",
			TaskType:             "core:audio2text",
			ExpectedRuntime:      120,
			IdleInterval:         20 * time.Millisecond,
			PostTriggerInterval:  time.Hour,
			ErrorInterval:        20 * time.Millisecond,
			DisabledPollInterval: 10 * time.Millisecond,
			RemoteLog:            true,
		},
		ModelIDs: reg.IDs(),
		Client:   client,
		Models:   cache,
		Journal:  store,
		Logger:   log,
	})
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	svc, err := app.New(app.Options{Catalog: reg, Cache: cache, History: store, Host: client, Worker: wc, Logger: log})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	control := httptest.NewServer(httpapi.NewMux(svc, httpapi.Options{AppID: appID, AppSecret: appSecret, Logger: log}))
	t.Cleanup(control.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx, wc) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("worker loop did not stop")
		}
	})
	return &stack{nc: nc, control: control, worker: wc, cache: cache, tmpDir: tmpDir}
}

// call sends an authenticated control-plane request and decodes the JSON reply.
func (s *stack) call(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, s.control.URL+path, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set(ocs.HeaderAppID, appID)
	req.Header.Set(ocs.HeaderAuth, ocs.EncodeAuth("", appSecret))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
