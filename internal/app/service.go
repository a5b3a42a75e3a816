// Package app binds the worker components to the control plane: it answers
// the httpapi.Service calls and applies the startup enabled state.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sttworker/internal/journal"
	"sttworker/internal/registry"
	"sttworker/internal/worker"
	"sttworker/pkg/types"
)

// Catalog lists discovered models. *registry.Registry satisfies it.
type Catalog interface {
	List() []registry.Descriptor
}

// CacheStatus reports the model cache slot. *manager.Cache satisfies it.
type CacheStatus interface {
	Status() types.CacheStatus
}

// History reads recent task attempts. *journal.Store satisfies it.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Host is the part of the orchestration client used outside the loop.
// *ocs.Client satisfies it.
type Host interface {
	EnabledState(ctx context.Context) (bool, error)
	SetInitStatus(ctx context.Context, progress int) error
}

// Options build a Service.
type Options struct {
	Catalog Catalog
	Cache   CacheStatus
	// History is optional.
	History History
	Host    Host
	Worker  *worker.Context
	Logger  zerolog.Logger
}

// Service implements httpapi.Service.
type Service struct {
	catalog Catalog
	cache   CacheStatus
	history History
	host    Host
	worker  *worker.Context
	logger  zerolog.Logger

	started time.Time
	ready   atomic.Bool
	clock   func() time.Time
}

func New(opts Options) (*Service, error) {
	if opts.Catalog == nil || opts.Cache == nil || opts.Host == nil || opts.Worker == nil {
		return nil, errors.New("app: catalog, cache, host and worker are required")
	}
	return &Service{
		catalog: opts.Catalog,
		cache:   opts.Cache,
		history: opts.History,
		host:    opts.Host,
		worker:  opts.Worker,
		logger:  opts.Logger.With().Str("component", "app").Logger(),
		started: time.Now(),
		clock:   time.Now,
	}, nil
}

// Bootstrap reads the enabled state from the host and, when enabled,
// registers the providers, unless PUT /enabled arrived in the meantime. The service reports ready afterwards even if the
// host could not be reached; the worker then stays disabled until the host
// calls PUT /enabled.
func (s *Service) Bootstrap(ctx context.Context) error {
	defer s.ready.Store(true)
	enabled, err := s.host.EnabledState(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not read enabled state, starting disabled")
		return fmt.Errorf("read enabled state: %w", err)
	}
	s.logger.Info().Bool("enabled", enabled).Msg("startup enabled state")
	if !enabled {
		return nil
	}
	msg, applied := s.worker.ApplyStartupState(ctx, true)
	if !applied {
		return nil
	}
	if msg != "" {
		return fmt.Errorf("register providers: %s", msg)
	}
	return nil
}

func (s *Service) Ready() bool { return s.ready.Load() }

func (s *Service) ListModels() []types.Model {
	descs := s.catalog.List()
	out := make([]types.Model, 0, len(descs))
	for _, d := range descs {
		out = append(out, types.Model{
			ID:       d.ID,
			Provider: s.worker.ProviderID(d.ID),
			Path:     d.Path,
			Root:     d.Root,
			Device:   d.Device(),
		})
	}
	return out
}

func (s *Service) Status() types.StatusResponse {
	now := s.clock()
	st := types.StatusResponse{
		Enabled:         s.worker.Gate.Enabled(),
		WaitIntervalSec: s.worker.Waiter.Interval().Seconds(),
		Providers:       s.worker.ProviderIDs(),
		Cache:           s.cache.Status(),
		UptimeSeconds:   int64(now.Sub(s.started).Seconds()),
		ServerTimeUnix:  now.Unix(),
	}
	if e := s.worker.LastTask(); e != nil {
		sum := Summary(*e)
		st.LastTask = &sum
	}
	return st
}

func (s *Service) History(ctx context.Context, limit int) ([]types.TaskSummary, error) {
	if s.history == nil {
		return nil, nil
	}
	entries, err := s.history.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.TaskSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, Summary(e))
	}
	return out, nil
}

func (s *Service) SetEnabled(ctx context.Context, enabled bool) string {
	return s.worker.HandleEnabled(ctx, enabled)
}

func (s *Service) Trigger(providerID string) { s.worker.HandleTrigger(providerID) }

// InitDone reports initialisation as complete; there is nothing to download.
func (s *Service) InitDone(ctx context.Context) error {
	return s.host.SetInitStatus(ctx, 100)
}

// Summary converts a journal entry to its API form.
func Summary(e journal.Entry) types.TaskSummary {
	return types.TaskSummary{
		AttemptID:  e.AttemptID,
		TaskID:     e.TaskID,
		Provider:   e.Provider,
		ModelID:    e.ModelID,
		Outcome:    e.Outcome,
		Error:      e.Error,
		StartedAt:  e.StartedAt.Unix(),
		DurationMS: e.Duration.Milliseconds(),
		AudioSec:   e.AudioSeconds,
	}
}
