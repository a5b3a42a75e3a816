// Package registry discovers locally installed speech-to-text models. Each
// subdirectory of a model root is one model whose id is the directory name.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"sttworker/internal/common/fsutil"
	"sttworker/internal/transcribe"
)

// ErrNoRoots is returned by Discover when none of the given roots exists.
var ErrNoRoots = errors.New("registry: no model root exists")

// Descriptor describes one discovered model. It holds no loaded state.
type Descriptor struct {
	ID   string
	Path string
	Root string

	device   string
	language string
	engine   transcribe.Engine
}

// Device is the device class the model will be loaded on.
func (d Descriptor) Device() string { return d.device }

// Load builds a new Model for this descriptor. Every call returns a fresh
// instance; caching is the caller's concern.
func (d Descriptor) Load(ctx context.Context) (transcribe.Model, error) {
	if d.engine == nil {
		return nil, fmt.Errorf("registry: no engine configured for model %s", d.ID)
	}
	m, err := d.engine.Open(ctx, transcribe.Spec{ID: d.ID, Path: d.Path, Device: d.device, Language: d.language})
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", d.ID, err)
	}
	return m, nil
}

// Options configure Discover.
type Options struct {
	Engine transcribe.Engine
	// Device overrides the reported compute device when set.
	Device   string
	Language string
	// Lookup reads the environment; defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
	Logger zerolog.Logger
}

// Registry is the immutable set of models found at startup.
type Registry struct {
	byID   map[string]Descriptor
	device string
}

// ResolveDevice maps the configured or reported compute device to a device
// class: cuda when it says cuda, cpu for anything else.
func ResolveDevice(override string, lookup func(string) (string, bool)) string {
	dev := strings.ToLower(strings.TrimSpace(override))
	if dev == "" && lookup != nil {
		if v, ok := lookup("COMPUTE_DEVICE"); ok {
			dev = strings.ToLower(strings.TrimSpace(v))
		}
	}
	if dev == transcribe.DeviceCUDA {
		return transcribe.DeviceCUDA
	}
	return transcribe.DeviceCPU
}

// Discover scans roots in order. A model id found in several roots resolves
// to the last root that has it. Roots that do not exist are skipped with a
// warning; a root that exists but cannot be listed is an error.
func Discover(opts Options, roots ...string) (*Registry, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	device := ResolveDevice(opts.Device, lookup)
	log := opts.Logger.With().Str("component", "registry").Logger()

	reg := &Registry{byID: make(map[string]Descriptor), device: device}
	found := 0
	for _, root := range roots {
		if root == "" {
			continue
		}
		dir, err := fsutil.ExpandHome(root)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("abs path: %w", err)
		}
		entries, err := os.ReadDir(abs)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Warn().Str("root", abs).Msg("model root missing, skipping")
				continue
			}
			return nil, fmt.Errorf("read model root %s: %w", abs, err)
		}
		found++
		for _, e := range entries {
			p := filepath.Join(abs, e.Name())
			if !e.IsDir() && !(e.Type()&os.ModeSymlink != 0 && fsutil.IsDir(p)) {
				continue
			}
			if prev, ok := reg.byID[e.Name()]; ok {
				log.Info().Str("model", e.Name()).Str("previous", prev.Path).Str("path", p).Msg("model shadowed by later root")
			}
			reg.byID[e.Name()] = Descriptor{
				ID:       e.Name(),
				Path:     p,
				Root:     abs,
				device:   device,
				language: opts.Language,
				engine:   opts.Engine,
			}
		}
	}
	if found == 0 {
		return nil, ErrNoRoots
	}
	log.Info().Int("models", len(reg.byID)).Str("device", device).Msg("models discovered")
	return reg, nil
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Loader returns the load function for id.
func (r *Registry) Loader(id string) (func(context.Context) (transcribe.Model, error), bool) {
	d, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return d.Load, true
}

// IDs returns the sorted model ids.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns all descriptors sorted by id.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.byID))
	for _, id := range r.IDs() {
		out = append(out, r.byID[id])
	}
	return out
}

// Device is the device class every model in this registry loads on.
func (r *Registry) Device() string { return r.device }

// Len is the number of discovered models.
func (r *Registry) Len() int { return len(r.byID) }
