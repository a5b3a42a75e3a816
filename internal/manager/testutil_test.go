package manager

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"sttworker/internal/transcribe"
)

// fakeModel is an in-memory model that counts Close calls.
type fakeModel struct {
	id     string
	closes atomic.Int32
	dead   atomic.Bool
}

func (m *fakeModel) ID() string     { return m.id }
func (m *fakeModel) Device() string { return transcribe.DeviceCPU }
func (m *fakeModel) Alive() bool    { return !m.dead.Load() }
func (m *fakeModel) Close() error   { m.closes.Add(1); return nil }
func (m *fakeModel) Transcribe(ctx context.Context, audioPath string) (*transcribe.Transcription, error) {
	return &transcribe.Transcription{Duration: 1, Segments: transcribe.Once(nil)}, nil
}

// countingLoader hands out fresh fakeModels and records every call.
type countingLoader struct {
	calls  int
	err    error
	models []*fakeModel
}

func (l *countingLoader) load(id string) LoadFunc {
	return func(ctx context.Context) (transcribe.Model, error) {
		l.calls++
		if l.err != nil {
			return nil, l.err
		}
		m := &fakeModel{id: id}
		l.models = append(l.models, m)
		return m, nil
	}
}

type mapCatalog map[string]LoadFunc

func (c mapCatalog) Loader(id string) (LoadFunc, bool) {
	f, ok := c[id]
	return f, ok
}

func newTestCache(cat Catalog) (*Cache, *MemoryPublisher) {
	c := New(cat, zerolog.Nop())
	pub := NewMemoryPublisher()
	c.SetEventPublisher(pub)
	return c, pub
}
