// Package transcribe exposes speech-to-text as an opaque capability: given an
// audio file path, a loaded Model yields timed text segments and the total
// audio duration.
//
// Two engines are provided:
//
//   - exec: spawns one long-lived transcriber process per loaded model and
//     talks to it over a line-delimited JSON protocol (see exec.go).
//   - stub: a development engine that produces a single placeholder segment.
package transcribe

import (
	"context"
	"errors"
	"iter"
)

// Device classes a model can be bound to.
const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Segment is one timed piece of a transcript. Times are in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is the result of a Transcribe call. Segments is lazy, finite
// and can be ranged over exactly once.
type Transcription struct {
	Duration float64
	Segments iter.Seq2[Segment, error]
}

// Model is a loaded inference engine bound to one model directory and one
// device class.
type Model interface {
	ID() string
	Device() string
	Transcribe(ctx context.Context, audioPath string) (*Transcription, error)
	// Close releases the underlying resources. The Model must not be used afterwards.
	Close() error
}

// Spec identifies what an Engine should load.
type Spec struct {
	ID       string
	Path     string
	Device   string
	Language string
}

// Engine turns a Spec into a live Model.
type Engine interface {
	Open(ctx context.Context, spec Spec) (Model, error)
}

// ErrConsumed is yielded when a Transcription's segments are ranged over a
// second time.
var ErrConsumed = errors.New("transcribe: segments already consumed")

// Collect drains a Transcription into a slice. Mostly useful in tests and the CLI.
func Collect(t *Transcription) ([]Segment, error) {
	var out []Segment
	for seg, err := range t.Segments {
		if err != nil {
			return out, err
		}
		out = append(out, seg)
	}
	return out, nil
}

// Once wraps a slice as a single-use segment sequence.
func Once(segs []Segment) iter.Seq2[Segment, error] {
	used := false
	return func(yield func(Segment, error) bool) {
		if used {
			yield(Segment{}, ErrConsumed)
			return
		}
		used = true
		for _, s := range segs {
			if !yield(s, nil) {
				return
			}
		}
	}
}
