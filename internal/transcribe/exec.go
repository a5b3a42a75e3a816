package transcribe

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"
)

// ExecEngine spawns one transcriber process per loaded model. The process is
// started as
//
//	<command...> --model <dir> --device <cpu|cuda> [--language <code>]
//
// and must speak line-delimited JSON:
//
//	-> {"ready":true}                         once the model is loaded
//	<- {"audio":"/tmp/input"}                 one request per line
//	-> {"duration":12.5}                      optional, before any segment
//	-> {"start":0,"end":2.1,"text":"..."}     zero or more segments
//	-> {"done":true} | {"error":"..."}        terminates the response
type ExecEngine struct {
	argv         []string
	language     string
	readyTimeout time.Duration
	logger       zerolog.Logger
}

const defaultReadyTimeout = 2 * time.Minute

// NewExecEngine parses command with shell quoting rules.
func NewExecEngine(command, language string, logger zerolog.Logger) (*ExecEngine, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse transcriber command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("transcriber command is empty")
	}
	return &ExecEngine{
		argv:         args,
		language:     language,
		readyTimeout: defaultReadyTimeout,
		logger:       logger.With().Str("component", "exec-transcriber").Logger(),
	}, nil
}

// SetReadyTimeout bounds how long Open waits for the ready line.
func (e *ExecEngine) SetReadyTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultReadyTimeout
	}
	e.readyTimeout = d
}

type wireMessage struct {
	Ready    bool     `json:"ready"`
	Duration *float64 `json:"duration"`
	Start    float64  `json:"start"`
	End      float64  `json:"end"`
	Text     string   `json:"text"`
	Done     bool     `json:"done"`
	Error    string   `json:"error"`
}

type wireRequest struct {
	Audio string `json:"audio"`
}

// Open starts the process and blocks until it reports ready, exits, or the
// ready timeout / ctx expires.
func (e *ExecEngine) Open(ctx context.Context, spec Spec) (Model, error) {
	args := append([]string{}, e.argv[1:]...)
	args = append(args, "--model", spec.Path, "--device", spec.Device)
	lang := spec.Language
	if lang == "" {
		lang = e.language
	}
	if lang != "" {
		args = append(args, "--language", lang)
	}

	// The process outlives ctx; it is stopped by Close.
	cmd := exec.Command(e.argv[0], args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transcriber stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transcriber stdout: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start transcriber: %w", err)
	}

	m := &execModel{
		spec:   spec,
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan []byte, 16),
		exited: make(chan struct{}),
		done:   make(chan struct{}),
		pumped: make(chan struct{}),
		stderr: stderr,
		logger: e.logger.With().Str("model", spec.ID).Int("pid", cmd.Process.Pid).Logger(),
	}
	go m.pump(stdout)
	go func() {
		m.waitErr = cmd.Wait()
		close(m.exited)
	}()
	m.logger.Info().Str("device", spec.Device).Str("path", spec.Path).Msg("transcriber started")

	timer := time.NewTimer(e.readyTimeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-m.lines:
			if !ok {
				<-m.exited
				return nil, fmt.Errorf("transcriber exited before ready: %v; stderr tail: %s", m.waitErr, stderr.String())
			}
			var msg wireMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				m.logger.Debug().Bytes("line", line).Msg("ignoring non-protocol line before ready")
				continue
			}
			if msg.Error != "" {
				_ = m.Close()
				return nil, fmt.Errorf("transcriber failed to load model %s: %s", spec.ID, msg.Error)
			}
			if msg.Ready {
				m.logger.Info().Msg("transcriber ready")
				return m, nil
			}
		case <-timer.C:
			_ = m.Close()
			return nil, fmt.Errorf("transcriber not ready after %s", e.readyTimeout)
		case <-ctx.Done():
			_ = m.Close()
			return nil, ctx.Err()
		}
	}
}

type execModel struct {
	spec    Spec
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan []byte
	exited  chan struct{}
	waitErr error
	// done is closed once nobody will read lines again; pumped when pump returns.
	done     chan struct{}
	doneOnce sync.Once
	pumped   chan struct{}
	stderr  *tailBuffer
	logger  zerolog.Logger

	mu      sync.Mutex
	pending bool // a response has not been read to its terminator yet
	closed  bool
}

func (m *execModel) ID() string     { return m.spec.ID }
func (m *execModel) Device() string { return m.spec.Device }

// Alive reports whether the process is still running.
func (m *execModel) Alive() bool {
	select {
	case <-m.exited:
		return false
	default:
		return !m.closed
	}
}

func (m *execModel) pump(r io.Reader) {
	defer close(m.pumped)
	defer close(m.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		if len(line) == 0 {
			continue
		}
		select {
		case m.lines <- line:
		case <-m.done:
			return
		}
	}
}

// stopReading releases pump from a send nobody will receive.
func (m *execModel) stopReading() {
	m.doneOnce.Do(func() { close(m.done) })
}

func (m *execModel) next(ctx context.Context) (wireMessage, error) {
	for {
		select {
		case line, ok := <-m.lines:
			if !ok {
				<-m.exited
				return wireMessage{}, fmt.Errorf("transcriber exited: %v; stderr tail: %s", m.waitErr, m.stderr.String())
			}
			var msg wireMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				m.logger.Debug().Bytes("line", line).Msg("ignoring non-protocol line")
				continue
			}
			return msg, nil
		case <-ctx.Done():
			// The response stream is now out of sync; the process cannot be reused.
			m.kill()
			return wireMessage{}, ctx.Err()
		}
	}
}

// drain discards the rest of an unfinished response.
func (m *execModel) drain(ctx context.Context) error {
	for {
		msg, err := m.next(ctx)
		if err != nil {
			return err
		}
		if msg.Done || msg.Error != "" {
			m.pending = false
			return nil
		}
	}
}

func (m *execModel) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.Alive() {
		return nil, fmt.Errorf("transcriber for model %s is not running", m.spec.ID)
	}
	if m.pending {
		if err := m.drain(ctx); err != nil {
			return nil, err
		}
	}
	req, err := json.Marshal(wireRequest{Audio: audioPath})
	if err != nil {
		return nil, err
	}
	if _, err := m.stdin.Write(append(req, '\n')); err != nil {
		return nil, fmt.Errorf("write transcriber request: %w", err)
	}
	m.pending = true

	first, err := m.next(ctx)
	if err != nil {
		return nil, err
	}
	if first.Error != "" {
		m.pending = false
		return nil, fmt.Errorf("transcription failed: %s", first.Error)
	}

	var head *Segment
	var duration float64
	switch {
	case first.Duration != nil:
		duration = *first.Duration
	case first.Done:
		m.pending = false
	default:
		head = &Segment{Start: first.Start, End: first.End, Text: first.Text}
	}
	if first.Duration == nil {
		if d, perr := ProbeDuration(audioPath); perr == nil {
			duration = d
		} else {
			m.logger.Debug().Err(perr).Msg("duration unknown")
		}
	}

	used := false
	seq := func(yield func(Segment, error) bool) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if used {
			yield(Segment{}, ErrConsumed)
			return
		}
		used = true
		if head != nil && !yield(*head, nil) {
			_ = m.drain(ctx)
			return
		}
		for m.pending {
			msg, err := m.next(ctx)
			if err != nil {
				m.pending = false
				yield(Segment{}, err)
				return
			}
			if msg.Error != "" {
				m.pending = false
				yield(Segment{}, fmt.Errorf("transcription failed: %s", msg.Error))
				return
			}
			if msg.Done {
				m.pending = false
				return
			}
			if msg.Duration != nil {
				continue
			}
			if !yield(Segment{Start: msg.Start, End: msg.End, Text: msg.Text}, nil) {
				_ = m.drain(ctx)
				return
			}
		}
	}
	return &Transcription{Duration: duration, Segments: seq}, nil
}

func (m *execModel) kill() {
	m.stopReading()
	if m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
	}
}

// Close stops the process: stdin is closed, then SIGTERM, then SIGKILL after
// 2s. It returns after the output reader has finished.
func (m *execModel) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	_ = m.stdin.Close()
	select {
	case <-m.exited:
	default:
		_ = m.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-m.exited:
		case <-time.After(2 * time.Second):
			m.kill()
			<-m.exited
		}
	}
	m.stopReading()
	<-m.pumped
	m.logger.Info().Msg("transcriber stopped")
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
