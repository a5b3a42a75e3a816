package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sttworker/internal/app"
	"sttworker/internal/config"
	"sttworker/internal/httpapi"
	"sttworker/internal/journal"
	"sttworker/internal/manager"
	"sttworker/internal/ocs"
	"sttworker/internal/registry"
	"sttworker/internal/transcribe"
	"sttworker/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log, closer := newLogger(cfg, stderrWriter())
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, log)
}

func newEngine(cfg config.Config, log zerolog.Logger) (transcribe.Engine, error) {
	switch cfg.Transcriber.Mode {
	case "stub":
		return transcribe.StubEngine{Logger: log}, nil
	default:
		return transcribe.NewExecEngine(cfg.Transcriber.Command, cfg.Transcriber.Language, log)
	}
}

func discoverModels(cfg config.Config, log zerolog.Logger) (*registry.Registry, error) {
	engine, err := newEngine(cfg, log)
	if err != nil {
		return nil, err
	}
	reg, err := registry.Discover(registry.Options{
		Engine:   engine,
		Device:   cfg.Device,
		Language: cfg.Transcriber.Language,
		Logger:   log,
	}, cfg.ModelsDir, cfg.PersistentDir)
	if err != nil {
		return nil, fmt.Errorf("discover models: %w", err)
	}
	return reg, nil
}

// serve wires every component and runs the control plane and the task loop
// until ctx is cancelled or one of them fails.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	reg, err := discoverModels(cfg, log)
	if err != nil {
		return err
	}
	if reg.Len() == 0 {
		log.Warn().Str("models_dir", cfg.ModelsDir).Str("persistent_dir", cfg.PersistentDir).Msg("no models found, nothing will be registered")
	}

	cache := manager.New(reg, log)
	cache.SetEventPublisher(manager.Publishers{manager.LogPublisher{Logger: log}, worker.MetricsPublisher{}})
	defer func() {
		if err := cache.Close(); err != nil {
			log.Warn().Err(err).Msg("closing model cache")
		}
	}()

	client, err := ocs.New(ocs.Options{
		BaseURL:     cfg.Orchestrator.URL,
		AppID:       cfg.Orchestrator.AppID,
		AppVersion:  cfg.Orchestrator.AppVersion,
		Secret:      cfg.Orchestrator.AppSecret,
		User:        cfg.Orchestrator.User,
		Timeout:     cfg.Orchestrator.RequestTimeout(),
		TLSInsecure: cfg.Orchestrator.TLSInsecure,
		TempDir:     cfg.Worker.TempDir,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	store, err := journal.Open(ctx, journal.Options{Path: cfg.Journal.Path, MaxEntries: cfg.Journal.MaxEntries}, log)
	if err != nil {
		return err
	}
	defer store.Close()

	wc, err := worker.NewContext(worker.Options{
		Settings: worker.Settings{
			ProviderPrefix:       cfg.Provider.Prefix,
			DisplayName:          cfg.Provider.DisplayName,
			TaskType:             cfg.Provider.TaskType,
			ExpectedRuntime:      cfg.Provider.ExpectedRuntimeSec,
			IdleInterval:         cfg.Worker.IdleInterval(),
			PostTriggerInterval:  cfg.Worker.PostTriggerInterval(),
			ErrorInterval:        cfg.Worker.ErrorInterval(),
			DisabledPollInterval: cfg.Worker.DisabledPollInterval(),
			RemoteLog:            cfg.Worker.RemoteLog,
		},
		ModelIDs: reg.IDs(),
		Client:   client,
		Models:   cache,
		Journal:  store,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	svc, err := app.New(app.Options{
		Catalog: reg,
		Cache:   cache,
		History: store,
		Host:    client,
		Worker:  wc,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewMux(svc, httpapi.Options{
			AppSecret:   cfg.Orchestrator.AppSecret,
			AppID:       cfg.Orchestrator.AppID,
			CORSEnabled: cfg.CORS.Enabled,
			CORSOrigins: cfg.CORS.Origins,
			Logger:      log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Int("models", reg.Len()).Msg("sttworker listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	g.Go(func() error {
		if err := svc.Bootstrap(gctx); err != nil {
			log.Warn().Err(err).Msg("startup registration incomplete")
		}
		return worker.Run(gctx, wc)
	})

	err = g.Wait()
	log.Info().Msg("sttworker stopped")
	return err
}
