package transcribe

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
)

// StubEngine loads models without any native backend. Every transcription is
// a single placeholder segment spanning the probed duration (1s if unknown).
type StubEngine struct {
	Logger zerolog.Logger
}

func (e StubEngine) Open(_ context.Context, spec Spec) (Model, error) {
	e.Logger.Warn().Str("model", spec.ID).Str("device", spec.Device).Msg("stub transcriber in use")
	return &stubModel{spec: spec}, nil
}

type stubModel struct {
	spec   Spec
	closed bool
}

func (m *stubModel) ID() string     { return m.spec.ID }
func (m *stubModel) Device() string { return m.spec.Device }

func (m *stubModel) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	if m.closed {
		return nil, fmt.Errorf("transcribe: model %s is closed", m.spec.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dur, err := ProbeDuration(audioPath)
	if err != nil || dur <= 0 {
		dur = 1
	}
	text := fmt.Sprintf("[%s transcript of %s]", m.spec.ID, filepath.Base(audioPath))
	return &Transcription{
		Duration: dur,
		Segments: Once([]Segment{{Start: 0, End: dur, Text: text}}),
	}, nil
}

func (m *stubModel) Close() error {
	m.closed = true
	return nil
}
