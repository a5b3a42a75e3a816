package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sttworker/internal/transcribe"
)

// LoadFunc builds a new Model.
type LoadFunc = func(ctx context.Context) (transcribe.Model, error)

// Catalog maps model ids to loaders. registry.Registry satisfies it.
type Catalog interface {
	Loader(id string) (LoadFunc, bool)
}

// alive is implemented by models backed by something that can die on its
// own, like a subprocess.
type alive interface {
	Alive() bool
}

// Cache holds at most one loaded Model.
type Cache struct {
	catalog   Catalog
	publisher EventPublisher
	logger    zerolog.Logger

	mu       sync.RWMutex
	id       string
	model    transcribe.Model
	state    State
	loadedAt time.Time
	loads    uint64
	err      string
}

// New returns an empty cache. catalog may be nil when only Get is used.
func New(catalog Catalog, logger zerolog.Logger) *Cache {
	return &Cache{
		catalog:   catalog,
		publisher: noopPublisher{},
		logger:    logger.With().Str("component", "model-cache").Logger(),
		state:     StateEmpty,
	}
}

// SetEventPublisher replaces the event sink. Passing nil restores the no-op publisher.
func (c *Cache) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	c.publisher = p
}

// Acquire resolves id through the catalog and returns the cached or freshly
// loaded model. Unknown ids fail with ErrModelUnavailable and leave the slot
// untouched.
func (c *Cache) Acquire(ctx context.Context, id string) (transcribe.Model, error) {
	if c.catalog == nil {
		return nil, ErrModelUnavailable(id)
	}
	load, ok := c.catalog.Loader(id)
	if !ok {
		return nil, ErrModelUnavailable(id)
	}
	return c.Get(ctx, id, load)
}

// Get returns the cached model when id matches the slot, without calling
// load. Otherwise the previous model is closed and the slot cleared before
// load runs. A failed load leaves the slot empty.
func (c *Cache) Get(ctx context.Context, id string, load LoadFunc) (transcribe.Model, error) {
	c.mu.RLock()
	cur, curID := c.model, c.id
	c.mu.RUnlock()

	if cur != nil && curID == id {
		if a, ok := cur.(alive); !ok || a.Alive() {
			return cur, nil
		}
		c.logger.Warn().Str("model", id).Msg("cached model is no longer running, reloading")
		c.release("dead")
	} else if cur != nil {
		c.release("switch")
	}

	c.mu.Lock()
	c.state = StateLoading
	c.err = ""
	c.mu.Unlock()
	c.publisher.Publish(Event{Name: "load_start", ModelID: id, Fields: map[string]any{}})

	start := time.Now()
	m, err := load(ctx)
	if err == nil && m == nil {
		err = errors.New("loader returned no model")
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateError
		c.err = err.Error()
		c.mu.Unlock()
		c.publisher.Publish(Event{Name: "load_error", ModelID: id, Fields: map[string]any{"error": err.Error()}})
		return nil, err
	}

	c.mu.Lock()
	c.id = id
	c.model = m
	c.state = StateReady
	c.loadedAt = time.Now()
	c.loads++
	c.mu.Unlock()
	c.publisher.Publish(Event{Name: "load_done", ModelID: id, Fields: map[string]any{
		"device":      m.Device(),
		"duration_ms": time.Since(start).Milliseconds(),
	}})
	return m, nil
}

// release closes the held model and clears the slot.
func (c *Cache) release(reason string) {
	c.mu.Lock()
	m, id := c.model, c.id
	c.model = nil
	c.id = ""
	c.state = StateEmpty
	c.mu.Unlock()
	if m == nil {
		return
	}
	if err := m.Close(); err != nil {
		c.logger.Warn().Err(err).Str("model", id).Msg("closing model failed")
	}
	c.publisher.Publish(Event{Name: "evict", ModelID: id, Fields: map[string]any{"reason": reason}})
}

// Current returns the id of the held model, or "".
func (c *Cache) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Close releases the held model. The cache stays usable.
func (c *Cache) Close() error {
	c.release("shutdown")
	return nil
}
