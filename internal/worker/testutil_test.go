package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sttworker/internal/manager"
	"sttworker/internal/ocs"
	"sttworker/internal/transcribe"
)

type call struct {
	op            string
	taskID        int64
	output        map[string]any
	errMsg        string
	progress      float64
	provider      string
	ignoreMissing bool
	gateEnabled   bool
}

type nextResp struct {
	nt  *ocs.NextTask
	err error
}

// fakeClient is a scripted orchestration service. Once the script is used
// up, NextTask reports no work and calls exhausted.
type fakeClient struct {
	mu        sync.Mutex
	calls     []call
	script    []nextResp
	exhausted func()
	nextCh    chan struct{}
	dir       string
	fetched   []string
	gate      *Gate
	fetchHook func()

	fetchErr    error
	resultErr   error
	failureErr  error
	progressErr error
	registerErr map[string]error
}

func newFakeClient(t *testing.T, script ...nextResp) *fakeClient {
	return &fakeClient{script: script, nextCh: make(chan struct{}, 100), dir: t.TempDir()}
}

func (f *fakeClient) record(c call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeClient) NextTask(ctx context.Context, providerIDs, taskTypes []string) (*ocs.NextTask, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: "next"})
	var r nextResp
	done := false
	if len(f.script) > 0 {
		r, f.script = f.script[0], f.script[1:]
	} else {
		done = true
	}
	exhausted := f.exhausted
	f.mu.Unlock()
	select {
	case f.nextCh <- struct{}{}:
	default:
	}
	if done && exhausted != nil {
		exhausted()
	}
	return r.nt, r.err
}

func (f *fakeClient) ReportResult(ctx context.Context, taskID int64, output map[string]any, errMsg string) error {
	f.record(call{op: "report", taskID: taskID, output: output, errMsg: errMsg})
	if errMsg == "" {
		return f.resultErr
	}
	return f.failureErr
}

func (f *fakeClient) SetProgress(ctx context.Context, taskID int64, percent float64) error {
	f.record(call{op: "progress", taskID: taskID, progress: percent})
	return f.progressErr
}

func (f *fakeClient) FetchFile(ctx context.Context, taskID, fileID int64) (string, error) {
	f.record(call{op: "fetch", taskID: taskID})
	if f.fetchHook != nil {
		f.fetchHook()
	}
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	fh, err := os.CreateTemp(f.dir, "input-*.wav")
	if err != nil {
		return "", err
	}
	_ = fh.Close()
	f.mu.Lock()
	f.fetched = append(f.fetched, fh.Name())
	f.mu.Unlock()
	return fh.Name(), nil
}

func (f *fakeClient) RegisterProvider(ctx context.Context, p ocs.Provider) error {
	f.record(call{op: "register", provider: p.ID, gateEnabled: f.gate != nil && f.gate.Enabled()})
	return f.registerErr[p.ID]
}

func (f *fakeClient) UnregisterProvider(ctx context.Context, id string, ignoreMissing bool) error {
	f.record(call{op: "unregister", provider: id, ignoreMissing: ignoreMissing, gateEnabled: f.gate != nil && f.gate.Enabled()})
	return f.registerErr[id]
}

func (f *fakeClient) Log(ctx context.Context, level ocs.LogLevel, msg string) error {
	f.record(call{op: "log", errMsg: msg})
	return nil
}

// ops returns the recorded operations, without remote log calls.
func (f *fakeClient) ops() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op != "log" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeClient) opsNamed(name string) []call {
	var out []call
	for _, c := range f.ops() {
		if c.op == name {
			out = append(out, c)
		}
	}
	return out
}

// fakeModel replays fixed segments.
type fakeModel struct {
	id       string
	segs     []transcribe.Segment
	duration float64
	err      error
	segErr   error
	panicMsg string

	mu        sync.Mutex
	inputs    []string
	inputSeen []bool
}

func (m *fakeModel) ID() string     { return m.id }
func (m *fakeModel) Device() string { return transcribe.DeviceCPU }
func (m *fakeModel) Close() error   { return nil }

func (m *fakeModel) Transcribe(ctx context.Context, audioPath string) (*transcribe.Transcription, error) {
	_, statErr := os.Stat(audioPath)
	m.mu.Lock()
	m.inputs = append(m.inputs, audioPath)
	m.inputSeen = append(m.inputSeen, statErr == nil)
	m.mu.Unlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return nil, m.err
	}
	segs := transcribe.Once(m.segs)
	if m.segErr != nil {
		good := m.segs
		segErr := m.segErr
		segs = func(yield func(transcribe.Segment, error) bool) {
			for _, s := range good {
				if !yield(s, nil) {
					return
				}
			}
			yield(transcribe.Segment{}, segErr)
		}
	}
	return &transcribe.Transcription{Duration: m.duration, Segments: segs}, nil
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// fakeModels resolves ids from a map.
type fakeModels struct {
	models   map[string]*fakeModel
	acquired []string
}

func (f *fakeModels) Acquire(ctx context.Context, id string) (transcribe.Model, error) {
	f.acquired = append(f.acquired, id)
	m, ok := f.models[id]
	if !ok {
		return nil, manager.ErrModelUnavailable(id)
	}
	return m, nil
}

func testSettings() Settings {
	return Settings{
		ProviderPrefix:       "stt_whisper2",
		DisplayName:          "Whisper",
		TaskType:             "core:audio2text",
		ExpectedRuntime:      120,
		IdleInterval:         time.Hour,
		PostTriggerInterval:  2 * time.Hour,
		ErrorInterval:        10 * time.Millisecond,
		DisabledPollInterval: 10 * time.Millisecond,
		RemoteLog:            true,
	}
}

func newTestContext(t *testing.T, fc *fakeClient, models *fakeModels, enabled bool) *Context {
	t.Helper()
	ids := make([]string, 0, len(models.models))
	for id := range models.models {
		ids = append(ids, id)
	}
	c, err := NewContext(Options{
		Settings: testSettings(),
		ModelIDs: ids,
		Client:   fc,
		Models:   models,
		Enabled:  enabled,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	fc.gate = c.Gate
	return c
}

func task(id int64, provider string) nextResp {
	return nextResp{nt: &ocs.NextTask{
		Task:     ocs.Task{ID: id, Type: "core:audio2text", Input: map[string]any{"input": float64(100 + id)}},
		Provider: ocs.ProviderRef{Name: provider},
	}}
}

// runScript runs the loop until the client's script is used up.
func runScript(t *testing.T, c *Context, fc *fakeClient) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc.exhausted = cancel
	done := make(chan error, 1)
	go func() { done <- Run(ctx, c) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("loop did not finish the script")
	}
}

func assertRemoved(t *testing.T, paths []string) {
	t.Helper()
	for _, p := range paths {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("temp input %s still exists (err=%v)", p, err)
		}
	}
}
