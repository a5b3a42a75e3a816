// Package worker runs the task dispatch loop: it polls the orchestration
// service for audio-to-text tasks, transcribes them with the cached model
// and reports the results.
//
// All process-wide state lives in Context, which the control plane and the
// loop share. The control plane only flips the Gate, triggers the Waiter and
// (un)registers providers; inference happens on the loop goroutine alone.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sttworker/internal/journal"
	"sttworker/internal/ocs"
	"sttworker/internal/transcribe"
)

// Orchestrator is the subset of the orchestration client the worker uses.
// *ocs.Client satisfies it.
type Orchestrator interface {
	NextTask(ctx context.Context, providerIDs, taskTypes []string) (*ocs.NextTask, error)
	ReportResult(ctx context.Context, taskID int64, output map[string]any, errMsg string) error
	SetProgress(ctx context.Context, taskID int64, percent float64) error
	FetchFile(ctx context.Context, taskID, fileID int64) (string, error)
	RegisterProvider(ctx context.Context, p ocs.Provider) error
	UnregisterProvider(ctx context.Context, id string, ignoreMissing bool) error
	Log(ctx context.Context, level ocs.LogLevel, msg string) error
}

// ModelSource resolves a model id to a loaded model. *manager.Cache satisfies it.
type ModelSource interface {
	Acquire(ctx context.Context, id string) (transcribe.Model, error)
}

// Journal records task attempts. *journal.Store satisfies it.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) (journal.Entry, error)
}

// Settings are the static parameters of the loop.
type Settings struct {
	ProviderPrefix  string
	DisplayName     string
	TaskType        string
	ExpectedRuntime int

	IdleInterval         time.Duration
	PostTriggerInterval  time.Duration
	ErrorInterval        time.Duration
	DisabledPollInterval time.Duration

	// RemoteLog forwards task-level messages to the service log.
	RemoteLog bool
}

// Options build a Context.
type Options struct {
	Settings Settings
	ModelIDs []string
	Client   Orchestrator
	Models   ModelSource
	// Journal is optional.
	Journal Journal
	Enabled bool
	Logger  zerolog.Logger
}

// Loop states reported by Context.State.
const (
	StateIdle       = "idle"
	StatePolling    = "polling"
	StateProcessing = "processing"
)

// Context is the process-owned worker state.
type Context struct {
	Gate   *Gate
	Waiter *Waiter

	client   Orchestrator
	models   ModelSource
	journal  Journal
	settings Settings
	logger   zerolog.Logger

	modelIDs    []string
	providerIDs []string

	state    atomic.Value
	lastTask atomic.Pointer[journal.Entry]
	// regMu serialises (un)registration rounds from concurrent control calls
	// and guards controlled.
	regMu sync.Mutex
	// controlled is set once the control plane has changed the enabled state.
	controlled bool
}

// NewContext validates opts and builds the worker state.
func NewContext(opts Options) (*Context, error) {
	if opts.Client == nil {
		return nil, errors.New("worker: orchestration client is required")
	}
	if opts.Models == nil {
		return nil, errors.New("worker: model source is required")
	}
	s := opts.Settings
	if s.ProviderPrefix == "" || s.TaskType == "" {
		return nil, errors.New("worker: provider prefix and task type are required")
	}
	if s.IdleInterval <= 0 || s.ErrorInterval <= 0 || s.DisabledPollInterval <= 0 {
		return nil, errors.New("worker: wait intervals must be positive")
	}
	c := &Context{
		Gate:     NewGate(opts.Enabled),
		Waiter:   NewWaiter(s.IdleInterval, s.PostTriggerInterval),
		client:   opts.Client,
		models:   opts.Models,
		journal:  opts.Journal,
		settings: s,
		logger:   opts.Logger.With().Str("component", "worker").Logger(),
		modelIDs: append([]string(nil), opts.ModelIDs...),
	}
	for _, id := range c.modelIDs {
		c.providerIDs = append(c.providerIDs, c.ProviderID(id))
	}
	c.state.Store(StateIdle)
	enabledGauge.Set(boolGauge(opts.Enabled))
	waitIntervalSeconds.Set(s.IdleInterval.Seconds())
	return c, nil
}

// ProviderID is the provider identity for a model id.
func (c *Context) ProviderID(modelID string) string {
	return c.settings.ProviderPrefix + ":" + modelID
}

// ProviderIDs returns the provider identities polled for, in model id order.
func (c *Context) ProviderIDs() []string {
	return append([]string(nil), c.providerIDs...)
}

// ModelIDs returns the served model ids.
func (c *Context) ModelIDs() []string {
	return append([]string(nil), c.modelIDs...)
}

// Providers returns the registrations announced on enable.
func (c *Context) Providers() []ocs.Provider {
	out := make([]ocs.Provider, 0, len(c.modelIDs))
	for _, id := range c.modelIDs {
		out = append(out, ocs.Provider{
			ID:              c.ProviderID(id),
			Name:            c.settings.DisplayName + ": " + id,
			TaskType:        c.settings.TaskType,
			ExpectedRuntime: c.settings.ExpectedRuntime,
		})
	}
	return out
}

// State is the current loop state: idle, polling or processing.
func (c *Context) State() string {
	s, _ := c.state.Load().(string)
	return s
}

func (c *Context) setState(s string) { c.state.Store(s) }

// LastTask returns the most recent finished attempt, or nil.
func (c *Context) LastTask() *journal.Entry {
	return c.lastTask.Load()
}

// HandleEnabled applies an enabled change from the control plane: the gate
// flips first, then every provider is registered (enable) or unregistered
// (disable). It returns once all calls have completed, with an error message
// for the caller or "" on success.
func (c *Context) HandleEnabled(ctx context.Context, enabled bool) string {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	c.controlled = true
	return c.applyEnabled(ctx, enabled)
}

// ApplyStartupState applies the enabled state read from the host at startup.
// It does nothing once the control plane has set the state. The second result
// reports whether the state was applied.
func (c *Context) ApplyStartupState(ctx context.Context, enabled bool) (string, bool) {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	if c.controlled {
		c.logger.Info().Bool("enabled", enabled).Msg("startup enabled state superseded by control plane")
		return "", false
	}
	return c.applyEnabled(ctx, enabled), true
}

// applyEnabled flips the gate and runs one (un)registration round. regMu
// must be held.
func (c *Context) applyEnabled(ctx context.Context, enabled bool) string {
	c.Gate.SetEnabled(enabled)
	enabledGauge.Set(boolGauge(enabled))
	c.logger.Info().Bool("enabled", enabled).Msg("enabled state changed")

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(4)
	for _, p := range c.Providers() {
		g.Go(func() error {
			var err error
			if enabled {
				err = c.client.RegisterProvider(ctx, p)
			} else {
				err = c.client.UnregisterProvider(ctx, p.ID, true)
			}
			if err != nil {
				c.logger.Error().Err(err).Str("provider", p.ID).Bool("enabled", enabled).Msg("provider registration call failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", p.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(errs) > 0 {
		return errors.Join(errs...).Error()
	}
	return ""
}

// HandleTrigger is the control-plane hint that new work may be queued. It
// never blocks.
func (c *Context) HandleTrigger(providerID string) {
	c.logger.Debug().Str("provider", providerID).Msg("trigger received")
	c.Waiter.Trigger()
}

// remoteLog sends msg to the service log when enabled. Failures are ignored.
func (c *Context) remoteLog(ctx context.Context, level ocs.LogLevel, msg string) {
	if !c.settings.RemoteLog {
		return
	}
	if err := c.client.Log(ctx, level, msg); err != nil {
		c.logger.Debug().Err(err).Msg("remote log failed")
	}
}
